package routing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heinnell/ordertrack/internal/adapters/routing"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// --- Stub RouteProvider ---

type stubProvider struct {
	name       string
	routeCalls int
	distCalls  int
	routeFn    func(origin, destination geo.Point) (*ports.RouteResult, error)
	distFn     func(origin, destination geo.Point) (*ports.DistanceResult, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetRoute(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error) {
	s.routeCalls++
	if s.routeFn != nil {
		return s.routeFn(origin, destination)
	}
	return nil, errors.New("unavailable")
}

func (s *stubProvider) GetDistance(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
	s.distCalls++
	if s.distFn != nil {
		return s.distFn(origin, destination)
	}
	return nil, errors.New("unavailable")
}

// ---------------------------------------------------------------------------

var (
	gwOrigin = geo.Point{Lat: 40.0, Lon: -3.0}
	gwDest   = geo.Point{Lat: 40.009, Lon: -3.0} // ~1 km north
)

func TestGateway_DistanceFallsBackToEstimate(t *testing.T) {
	g := routing.NewGateway(&stubProvider{name: "down"})

	res, err := g.GetDistance(context.Background(), gwOrigin, gwDest)
	if err != nil {
		t.Fatalf("distance lookups must not fail for valid input: %v", err)
	}
	if !res.Estimated {
		t.Error("expected the closed-form estimate to be flagged")
	}
	if res.DistanceM < 950 || res.DistanceM > 1050 {
		t.Errorf("expected ~1 km, got %f", res.DistanceM)
	}
	// Short legs assume dense-urban speed, ~25 km/h.
	if res.Duration < 100*time.Second || res.Duration > 200*time.Second {
		t.Errorf("expected a few minutes for 1 km at urban speed, got %s", res.Duration)
	}
}

func TestGateway_NoProvidersStillEstimates(t *testing.T) {
	g := routing.NewGateway()

	res, err := g.GetDistance(context.Background(), gwOrigin, gwDest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Estimated {
		t.Error("expected an estimate with an empty provider chain")
	}
}

func TestGateway_DistanceCaching(t *testing.T) {
	p := &stubProvider{
		name: "fast",
		distFn: func(origin, destination geo.Point) (*ports.DistanceResult, error) {
			return &ports.DistanceResult{DistanceM: 1200, Duration: 3 * time.Minute, Provider: "fast"}, nil
		},
	}
	g := routing.NewGateway(p)

	first, err := g.GetDistance(context.Background(), gwOrigin, gwDest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Perturb by ~1 m: rounds onto the same cache key.
	second, err := g.GetDistance(context.Background(),
		geo.Point{Lat: gwOrigin.Lat + 0.00001, Lon: gwOrigin.Lon}, gwDest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.distCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", p.distCalls)
	}
	if first.DistanceM != second.DistanceM {
		t.Errorf("expected the cached result, got %f vs %f", first.DistanceM, second.DistanceM)
	}
}

func TestGateway_EstimatesAreNotCached(t *testing.T) {
	failures := 0
	p := &stubProvider{
		name: "flaky",
		distFn: func(origin, destination geo.Point) (*ports.DistanceResult, error) {
			failures++
			if failures == 1 {
				return nil, errors.New("timeout")
			}
			return &ports.DistanceResult{DistanceM: 1200, Duration: 3 * time.Minute, Provider: "flaky"}, nil
		},
	}
	g := routing.NewGateway(p)

	res, err := g.GetDistance(context.Background(), gwOrigin, gwDest)
	if err != nil || !res.Estimated {
		t.Fatalf("expected an estimate while the provider is down, got %+v, %v", res, err)
	}

	// Recovered provider wins the next call instead of a stale estimate.
	res, err = g.GetDistance(context.Background(), gwOrigin, gwDest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Estimated || res.Provider != "flaky" {
		t.Errorf("expected the recovered provider to answer, got %+v", res)
	}
}

func TestGateway_RejectsInvalidCoordinates(t *testing.T) {
	g := routing.NewGateway()

	if _, err := g.GetDistance(context.Background(), geo.Point{}, gwDest); err == nil {
		t.Error("expected error for the (0,0) sentinel")
	}
	if _, err := g.GetRoute(context.Background(), gwOrigin, geo.Point{Lat: 91, Lon: 0}); err == nil {
		t.Error("expected error for out-of-range latitude")
	}
}

func TestGateway_RouteFailsWhenAllProvidersFail(t *testing.T) {
	g := routing.NewGateway(&stubProvider{name: "down"})

	if _, err := g.GetRoute(context.Background(), gwOrigin, gwDest); err == nil {
		t.Error("route lookups have no closed-form fallback and must fail")
	}
}

func TestGateway_RouteFallsThroughChain(t *testing.T) {
	primary := &stubProvider{name: "primary"}
	fallback := &stubProvider{
		name: "fallback",
		routeFn: func(origin, destination geo.Point) (*ports.RouteResult, error) {
			return &ports.RouteResult{
				Points:    []geo.Point{origin, destination},
				DistanceM: 1100,
				Duration:  3 * time.Minute,
				Provider:  "fallback",
			}, nil
		},
	}
	g := routing.NewGateway(primary, fallback)

	res, err := g.GetRoute(context.Background(), gwOrigin, gwDest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "fallback" {
		t.Errorf("expected the fallback to answer, got %s", res.Provider)
	}
	if primary.routeCalls != 1 {
		t.Errorf("expected the primary to be tried first, got %d calls", primary.routeCalls)
	}
}

func TestGateway_RouteCaching(t *testing.T) {
	p := &stubProvider{
		name: "fast",
		routeFn: func(origin, destination geo.Point) (*ports.RouteResult, error) {
			return &ports.RouteResult{
				Points:    []geo.Point{origin, destination},
				DistanceM: 1100,
				Duration:  3 * time.Minute,
				Provider:  "fast",
			}, nil
		},
	}
	g := routing.NewGateway(p)

	if _, err := g.GetRoute(context.Background(), gwOrigin, gwDest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.GetRoute(context.Background(), gwOrigin, gwDest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.routeCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", p.routeCalls)
	}
}
