package usecases

import (
	"fmt"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// RouteMatcher associates travelled positions with the planned polyline and
// derives forward progress. GPS noise must never make a vehicle appear to
// regress, so among all acceptable anchors the furthest route index wins.
//
// Not safe for concurrent use; a tracking session confines it to one order.
type RouteMatcher struct {
	cfg   EngineConfig
	cache *nearestCache
}

// NewRouteMatcher creates a matcher with an empty distance cache.
func NewRouteMatcher(cfg EngineConfig) *RouteMatcher {
	return &RouteMatcher{cfg: cfg, cache: newNearestCache(cfg.DistanceCacheSize)}
}

type anchor struct {
	segment    int     // index of the segment's first vertex
	alongM     float64 // cumulative distance from route start to the projection
	deviationM float64
}

// Match scans the travel history from most recent to oldest and returns the
// best route anchor. Empty inputs yield a zero-progress off-route result
// rather than an error.
func (m *RouteMatcher) Match(history []domain.Position, route *domain.PlannedRoute) domain.RouteProgress {
	if route == nil || len(route.Points) < 2 || len(history) == 0 {
		return domain.RouteProgress{}
	}

	var best *anchor
	bestConf := 0.0

	for i := len(history) - 1; i >= 0; i-- {
		a, ok := m.anchorFor(history[i].Location, route)
		if !ok {
			continue
		}
		conf := confidence(a.deviationM, m.cfg.CorridorToleranceM)

		switch {
		case best == nil,
			a.alongM > best.alongM,
			a.alongM == best.alongM && conf > bestConf:
			best = &a
			bestConf = conf
		}

		// A near-perfect anchor cannot be improved enough to matter.
		if bestConf > m.cfg.NearPerfectConfidence {
			break
		}
	}

	if best == nil {
		return domain.RouteProgress{}
	}
	return domain.RouteProgress{
		MatchedIndex:   best.segment,
		DistanceAlongM: best.alongM,
		Confidence:     bestConf,
		OnRoute:        bestConf >= m.cfg.MinRouteConfidence,
		DeviationM:     best.deviationM,
	}
}

// OnPlannedPath applies the stricter corridor used for "is the vehicle still
// following the plan" checks, as opposed to progress matching.
func (m *RouteMatcher) OnPlannedPath(p geo.Point, route *domain.PlannedRoute) bool {
	if route == nil || len(route.Points) < 2 {
		return false
	}
	a, ok := m.anchorFor(p, route)
	return ok && a.deviationM <= m.cfg.StrictToleranceM
}

// anchorFor finds the closest point on the route for one fix: nearest vertex
// first, then refinement onto the adjacent segments. Results are memoised by
// rounded coordinate since consecutive fixes often land on the same cell.
func (m *RouteMatcher) anchorFor(p geo.Point, route *domain.PlannedRoute) (anchor, bool) {
	key := cacheKey(route.ID, p)
	if a, ok := m.cache.get(key); ok {
		return a, a.deviationM <= m.cfg.CorridorToleranceM
	}

	idx, _, err := geo.NearestIndex(p, route.Points)
	if err != nil {
		return anchor{}, false
	}

	best := anchor{segment: idx, alongM: route.DistanceToIndex(idx), deviationM: geo.Distance(p, route.Points[idx])}
	for _, seg := range []int{idx - 1, idx} {
		if seg < 0 || seg+1 >= len(route.Points) {
			continue
		}
		_, t, dev := geo.ClosestOnSegment(p, route.Points[seg], route.Points[seg+1])
		if dev < best.deviationM {
			segLen := geo.Distance(route.Points[seg], route.Points[seg+1])
			best = anchor{
				segment:    seg,
				alongM:     route.DistanceToIndex(seg) + t*segLen,
				deviationM: dev,
			}
		}
	}

	m.cache.put(key, best)
	return best, best.deviationM <= m.cfg.CorridorToleranceM
}

func confidence(deviationM, toleranceM float64) float64 {
	if toleranceM <= 0 {
		return 0
	}
	c := 1 - deviationM/toleranceM
	if c < 0 {
		return 0
	}
	return c
}

// cacheKey rounds to 4 decimal places (~11 m), enough to collapse jittering
// fixes without conflating distinct road positions.
func cacheKey(routeID string, p geo.Point) string {
	return fmt.Sprintf("%s|%.4f,%.4f", routeID, p.Lat, p.Lon)
}

// nearestCache is a bounded memo of per-cell anchors. Eviction is whole-map
// reset at capacity: cheap, and a session rarely revisits old cells.
type nearestCache struct {
	max     int
	entries map[string]anchor
}

func newNearestCache(max int) *nearestCache {
	if max < 1 {
		max = 1
	}
	return &nearestCache{max: max, entries: make(map[string]anchor, max)}
}

func (c *nearestCache) get(k string) (anchor, bool) {
	a, ok := c.entries[k]
	return a, ok
}

func (c *nearestCache) put(k string, a anchor) {
	if len(c.entries) >= c.max {
		c.entries = make(map[string]anchor, c.max)
	}
	c.entries[k] = a
}
