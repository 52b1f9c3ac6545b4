package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/core/usecases"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// --- Mock RouteProvider ---

type mockProvider struct {
	name       string
	getRouteFn func(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error)
	getDistFn  func(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error)
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) GetRoute(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error) {
	if m.getRouteFn != nil {
		return m.getRouteFn(ctx, origin, destination)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProvider) GetDistance(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
	if m.getDistFn != nil {
		return m.getDistFn(ctx, origin, destination)
	}
	return nil, errors.New("not implemented")
}

// ---------------------------------------------------------------------------

func newETAFixture(cfg usecases.EngineConfig, gateway ports.RouteProvider) (*usecases.SpeedEstimator, *usecases.ETAEstimator) {
	speed := usecases.NewSpeedEstimator(cfg)
	matcher := usecases.NewRouteMatcher(cfg)
	return speed, usecases.NewETAEstimator(cfg, speed, matcher, gateway)
}

func TestETAEstimator_EmptyHistory(t *testing.T) {
	_, eta := newETAFixture(usecases.DefaultEngineConfig(), nil)

	result, progress := eta.Estimate(context.Background(), nil, geo.Point{Lat: 40.01, Lon: -3.0}, nil)
	if result.Confidence != domain.ConfidenceLow {
		t.Errorf("expected low confidence, got %s", result.Confidence)
	}
	if result.Trend != domain.TrendStable {
		t.Errorf("expected stable trend, got %s", result.Trend)
	}
	if progress != (domain.RouteProgress{}) {
		t.Errorf("expected zero progress, got %+v", progress)
	}
}

func TestETAEstimator_MidRouteEstimate(t *testing.T) {
	speed, eta := newETAFixture(usecases.DefaultEngineConfig(), nil)
	now := time.Now()

	// Route runs ~85 km due east; the vehicle has covered half of it in an hour.
	origin := geo.Point{Lat: 40.0, Lon: -3.0}
	dest := geo.Point{Lat: 40.0, Lon: -2.0}
	route := domain.NewPlannedRoute("route-1", []geo.Point{origin, dest}, 90*time.Minute, "osrm")

	history := []domain.Position{
		pos(now.Add(-60*time.Minute), 40.0, -3.0),
		pos(now, 40.0, -2.5),
	}
	for _, p := range history {
		speed.Observe(p)
	}

	result, progress := eta.Estimate(context.Background(), history, dest, route)

	if !progress.OnRoute {
		t.Fatal("midpoint fix should be on route")
	}
	if result.ProgressPercent < 49 || result.ProgressPercent > 51 {
		t.Errorf("expected ~50%% progress, got %f", result.ProgressPercent)
	}
	if result.RemainingDistanceM < 42000 || result.RemainingDistanceM > 43200 {
		t.Errorf("expected ~42.6 km remaining, got %f", result.RemainingDistanceM)
	}
	// One speed sample: the conservative 40 km/h default drives the estimate.
	if result.RemainingDuration < 60*time.Minute || result.RemainingDuration > 68*time.Minute {
		t.Errorf("expected ~64 min remaining, got %s", result.RemainingDuration)
	}
	if result.Confidence != domain.ConfidenceMedium {
		t.Errorf("expected medium confidence, got %s", result.Confidence)
	}
	if !result.EstimatedArrival.After(now) {
		t.Error("arrival must lie in the future")
	}
}

func TestETAEstimator_DelayMeasuredAgainstFirstBaseline(t *testing.T) {
	speed, eta := newETAFixture(usecases.DefaultEngineConfig(), nil)
	now := time.Now()

	origin := geo.Point{Lat: 40.0, Lon: -3.0}
	dest := geo.Point{Lat: 40.0, Lon: -2.0}
	route := domain.NewPlannedRoute("route-1", []geo.Point{origin, dest}, 90*time.Minute, "osrm")

	eta.SetOriginalETA(now)
	eta.SetOriginalETA(now.Add(3 * time.Hour)) // must be ignored

	history := []domain.Position{
		pos(now.Add(-60*time.Minute), 40.0, -3.0),
		pos(now, 40.0, -2.5),
	}
	for _, p := range history {
		speed.Observe(p)
	}

	result, _ := eta.Estimate(context.Background(), history, dest, route)
	if result.DelayMinutes == nil {
		t.Fatal("expected a delay once the baseline is set")
	}
	if *result.DelayMinutes < 55 || *result.DelayMinutes > 70 {
		t.Errorf("expected ~64 min delay against the first baseline, got %d", *result.DelayMinutes)
	}
}

func TestETAEstimator_ClampsDuration(t *testing.T) {
	cfg := usecases.DefaultEngineConfig()
	_, eta := newETAFixture(cfg, nil)
	now := time.Now()

	// Destination thousands of kilometers away.
	far := geo.Point{Lat: -40.0, Lon: -3.0}
	result, _ := eta.Estimate(context.Background(), []domain.Position{pos(now, 40.0, -3.0)}, far, nil)
	if result.RemainingDuration != cfg.MaxDuration {
		t.Errorf("expected clamp to %s, got %s", cfg.MaxDuration, result.RemainingDuration)
	}
	if result.Confidence != domain.ConfidenceLow {
		t.Errorf("single sample should be low confidence, got %s", result.Confidence)
	}

	// Destination a few meters away.
	_, eta = newETAFixture(cfg, nil)
	near := geo.Point{Lat: 40.00009, Lon: -3.0}
	result, _ = eta.Estimate(context.Background(), []domain.Position{pos(now, 40.0, -3.0)}, near, nil)
	if result.RemainingDuration != cfg.MinDuration {
		t.Errorf("expected clamp to %s, got %s", cfg.MinDuration, result.RemainingDuration)
	}
}

func TestETAEstimator_StoppedVehicleAssumesCruise(t *testing.T) {
	cfg := usecases.DefaultEngineConfig()
	speed, eta := newETAFixture(cfg, nil)
	now := time.Now()

	// Crawl at ~1.7 km/h for 12 minutes: enough samples that the blend
	// reflects the crawl instead of the default.
	var history []domain.Position
	lat := 40.0
	for i := 12; i >= 0; i-- {
		p := pos(now.Add(-time.Duration(i)*time.Minute), lat, -3.0)
		history = append(history, p)
		speed.Observe(p)
		lat += 0.00025
	}

	// ~25 km ahead.
	dest := geo.Point{Lat: 40.2278, Lon: -3.0}
	result, _ := eta.Estimate(context.Background(), history, dest, nil)

	// At crawl speed this leg would take ~15 h; the assumed cruise keeps it sane.
	if result.RemainingDuration > time.Hour {
		t.Errorf("stopped vehicle should fall back to cruise speed, got %s", result.RemainingDuration)
	}
	if result.Confidence != domain.ConfidenceLow {
		t.Errorf("near-stationary vehicle should report low confidence, got %s", result.Confidence)
	}
}

func TestETAEstimator_OffRouteIsLowConfidence(t *testing.T) {
	speed, eta := newETAFixture(usecases.DefaultEngineConfig(), nil)
	now := time.Now()

	// Planned route a degree north of where the vehicle actually is.
	route := domain.NewPlannedRoute("route-1", []geo.Point{
		{Lat: 41.0, Lon: -3.0}, {Lat: 41.0, Lon: -2.0},
	}, 0, "osrm")

	history := []domain.Position{
		pos(now.Add(-time.Minute), 40.0, -3.0),
		pos(now, 40.0, -2.99),
	}
	for _, p := range history {
		speed.Observe(p)
	}

	result, progress := eta.Estimate(context.Background(), history, geo.Point{Lat: 40.0, Lon: -2.0}, route)
	if progress.OnRoute {
		t.Fatal("vehicle a degree off the polyline must be off route")
	}
	if result.Confidence != domain.ConfidenceLow {
		t.Errorf("off-route estimate should be low confidence, got %s", result.Confidence)
	}
	if result.RemainingDistanceM <= 0 {
		t.Error("off-route estimate should still carry the direct distance")
	}
}

func TestETAEstimator_TrafficAdjustment(t *testing.T) {
	cfg := usecases.DefaultEngineConfig()
	cfg.TrafficAware = true

	gateway := &mockProvider{
		getDistFn: func(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
			return &ports.DistanceResult{
				DistanceM:    42000,
				Duration:     40 * time.Minute,
				TrafficDelay: 10 * time.Minute,
				Provider:     "mock",
			}, nil
		},
	}
	speed, eta := newETAFixture(cfg, gateway)
	now := time.Now()

	origin := geo.Point{Lat: 40.0, Lon: -3.0}
	dest := geo.Point{Lat: 40.0, Lon: -2.0}
	route := domain.NewPlannedRoute("route-1", []geo.Point{origin, dest}, 0, "osrm")

	history := []domain.Position{
		pos(now.Add(-60*time.Minute), 40.0, -3.0),
		pos(now, 40.0, -2.5),
	}
	for _, p := range history {
		speed.Observe(p)
	}

	result, _ := eta.Estimate(context.Background(), history, dest, route)
	if !result.TrafficAdjusted {
		t.Fatal("provider answer should mark the estimate traffic adjusted")
	}
	if result.RemainingDuration != 50*time.Minute {
		t.Errorf("expected provider duration plus delay, got %s", result.RemainingDuration)
	}
	if result.RemainingDistanceM != 42000 {
		t.Errorf("expected provider distance, got %f", result.RemainingDistanceM)
	}
}

func TestETAEstimator_IgnoresEstimatedTrafficAnswers(t *testing.T) {
	cfg := usecases.DefaultEngineConfig()
	cfg.TrafficAware = true

	gateway := &mockProvider{
		getDistFn: func(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
			return &ports.DistanceResult{DistanceM: 1, Duration: time.Minute, Estimated: true, Provider: "estimate"}, nil
		},
	}
	speed, eta := newETAFixture(cfg, gateway)
	now := time.Now()

	history := []domain.Position{
		pos(now.Add(-time.Minute), 40.0, -3.0),
		pos(now, 40.01, -3.0),
	}
	for _, p := range history {
		speed.Observe(p)
	}

	result, _ := eta.Estimate(context.Background(), history, geo.Point{Lat: 40.5, Lon: -3.0}, nil)
	if result.TrafficAdjusted {
		t.Error("closed-form gateway answers must not count as traffic adjusted")
	}
}
