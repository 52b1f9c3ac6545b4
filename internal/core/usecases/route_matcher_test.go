package usecases_test

import (
	"testing"
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/usecases"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// northboundRoute builds an 11-vertex polyline heading north from (40, -3),
// one vertex every ~111 m.
func northboundRoute() *domain.PlannedRoute {
	points := make([]geo.Point, 11)
	for i := range points {
		points[i] = geo.Point{Lat: 40.0 + float64(i)*0.001, Lon: -3.0}
	}
	return domain.NewPlannedRoute("route-1", points, 0, "osrm")
}

func TestRouteMatcher_MatchesNearbyFix(t *testing.T) {
	m := usecases.NewRouteMatcher(usecases.DefaultEngineConfig())
	route := northboundRoute()

	// ~8.5 m east of the halfway vertex.
	history := []domain.Position{pos(time.Now(), 40.005, -3.0001)}
	progress := m.Match(history, route)

	if !progress.OnRoute {
		t.Fatal("fix a few meters off the polyline should be on route")
	}
	if progress.Confidence < 0.9 {
		t.Errorf("expected near-perfect confidence, got %f", progress.Confidence)
	}
	if progress.DistanceAlongM < 540 || progress.DistanceAlongM > 572 {
		t.Errorf("expected ~556 m along, got %f", progress.DistanceAlongM)
	}
	if progress.DeviationM > 20 {
		t.Errorf("expected small deviation, got %f", progress.DeviationM)
	}
}

func TestRouteMatcher_JitterNeverRegressesProgress(t *testing.T) {
	m := usecases.NewRouteMatcher(usecases.DefaultEngineConfig())
	route := northboundRoute()
	t0 := time.Now()

	// Clean fix at the halfway vertex, then a noisy fix that would match
	// an earlier vertex ~100 m off the corridor.
	history := []domain.Position{
		pos(t0, 40.005, -3.0),
		pos(t0.Add(10*time.Second), 40.003, -3.0012),
	}
	progress := m.Match(history, route)

	if progress.DistanceAlongM < 500 {
		t.Errorf("noisy newer fix must not pull progress backwards, got %f m along", progress.DistanceAlongM)
	}
	if progress.Confidence < 0.95 {
		t.Errorf("the clean anchor should win, got confidence %f", progress.Confidence)
	}
}

func TestRouteMatcher_FarFixIsOffRoute(t *testing.T) {
	m := usecases.NewRouteMatcher(usecases.DefaultEngineConfig())
	route := northboundRoute()

	// ~1.7 km east of the corridor.
	history := []domain.Position{pos(time.Now(), 40.005, -3.02)}
	progress := m.Match(history, route)

	if progress.OnRoute {
		t.Error("fix far outside the corridor must be off route")
	}
	if progress.DistanceAlongM != 0 || progress.Confidence != 0 {
		t.Errorf("off-route match should be zero-valued, got %+v", progress)
	}
}

func TestRouteMatcher_EmptyInputs(t *testing.T) {
	m := usecases.NewRouteMatcher(usecases.DefaultEngineConfig())
	route := northboundRoute()

	if got := m.Match(nil, route); got != (domain.RouteProgress{}) {
		t.Errorf("empty history should match to zero progress, got %+v", got)
	}
	if got := m.Match([]domain.Position{pos(time.Now(), 40.005, -3.0)}, nil); got != (domain.RouteProgress{}) {
		t.Errorf("nil route should match to zero progress, got %+v", got)
	}
}

func TestRouteMatcher_OnPlannedPathUsesStrictCorridor(t *testing.T) {
	m := usecases.NewRouteMatcher(usecases.DefaultEngineConfig())
	route := northboundRoute()

	if !m.OnPlannedPath(geo.Point{Lat: 40.005, Lon: -3.0001}, route) {
		t.Error("fix ~8 m off the polyline should pass the strict check")
	}
	// ~340 m off: inside the progress corridor but outside the strict one.
	if m.OnPlannedPath(geo.Point{Lat: 40.005, Lon: -3.004}, route) {
		t.Error("fix ~340 m off the polyline should fail the strict check")
	}
}
