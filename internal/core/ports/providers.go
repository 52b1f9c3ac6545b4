package ports

import (
	"context"
	"time"

	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// RouteResult is a resolved path between two points.
type RouteResult struct {
	Points    []geo.Point
	DistanceM float64
	Duration  time.Duration
	// Instructions holds turn-by-turn text when the backend supplies it.
	Instructions []string
	Provider     string
}

// DistanceResult is a point-to-point travel estimate.
type DistanceResult struct {
	DistanceM    float64
	Duration     time.Duration
	TrafficDelay time.Duration
	// Estimated marks a closed-form fallback rather than a provider answer.
	Estimated bool
	Provider  string
}

// RouteProvider is one interchangeable routing backend. Implementations must
// honour context cancellation on all network calls.
type RouteProvider interface {
	Name() string
	GetRoute(ctx context.Context, origin, destination geo.Point) (*RouteResult, error)
	GetDistance(ctx context.Context, origin, destination geo.Point) (*DistanceResult, error)
}
