package usecases

import (
	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// GeofenceEvaluator fires at most once per target. A fired target is removed
// from the active set, so re-entering its radius later in the session is
// silent. There is deliberately no hysteresis: entering and immediately
// leaving the radius still counts as one firing.
type GeofenceEvaluator struct {
	active []domain.GeofenceTarget
}

// NewGeofenceEvaluator copies the target list so callers can reuse theirs.
func NewGeofenceEvaluator(targets []domain.GeofenceTarget) *GeofenceEvaluator {
	active := make([]domain.GeofenceTarget, len(targets))
	copy(active, targets)
	return &GeofenceEvaluator{active: active}
}

// Evaluate checks the sample against every still-active target and returns
// the fired events in target order.
func (g *GeofenceEvaluator) Evaluate(p domain.Position) []domain.GeofenceEvent {
	if len(g.active) == 0 {
		return nil
	}

	var fired []domain.GeofenceEvent
	remaining := g.active[:0]
	for _, target := range g.active {
		// Cheap rectangle check before the trig.
		minLat, minLon, maxLat, maxLon := geo.BoundingBox(target.Center.Lat, target.Center.Lon, target.RadiusM)
		if p.Location.Lat < minLat || p.Location.Lat > maxLat ||
			p.Location.Lon < minLon || p.Location.Lon > maxLon {
			remaining = append(remaining, target)
			continue
		}
		d := geo.Distance(p.Location, target.Center)
		if d <= target.RadiusM {
			fired = append(fired, domain.GeofenceEvent{
				OrderID:   p.OrderID,
				Target:    target,
				Time:      p.Time,
				DistanceM: d,
			})
			continue
		}
		remaining = append(remaining, target)
	}
	g.active = remaining
	return fired
}

// Active returns the targets that have not fired yet.
func (g *GeofenceEvaluator) Active() []domain.GeofenceTarget {
	out := make([]domain.GeofenceTarget, len(g.active))
	copy(out, g.active)
	return out
}
