package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// ETAEstimator combines matched progress and the speed signal into an arrival
// estimate. It degrades gracefully: no planned route means straight-line
// distance, no usable speed means an assumed cruising speed, and it never
// produces an unbounded ETA.
type ETAEstimator struct {
	cfg      EngineConfig
	speed    *SpeedEstimator
	matcher  *RouteMatcher
	gateway  ports.RouteProvider // optional, used when cfg.TrafficAware
	original *time.Time
	now      func() time.Time
}

// NewETAEstimator wires the estimator to its upstream signals. gateway may be
// nil; traffic adjustment is then skipped even when configured on.
func NewETAEstimator(cfg EngineConfig, speed *SpeedEstimator, matcher *RouteMatcher, gateway ports.RouteProvider) *ETAEstimator {
	return &ETAEstimator{
		cfg:     cfg,
		speed:   speed,
		matcher: matcher,
		gateway: gateway,
		now:     time.Now,
	}
}

// SetOriginalETA records the trip-start baseline. Set once; later calls are
// ignored so schedule slippage is always measured against the first plan.
func (e *ETAEstimator) SetOriginalETA(t time.Time) {
	if e.original == nil {
		e.original = &t
	}
}

// Estimate produces the arrival estimate for the current sample. route may be
// nil. The returned progress is the match the estimate was based on.
func (e *ETAEstimator) Estimate(ctx context.Context, history []domain.Position, destination geo.Point, route *domain.PlannedRoute) (domain.ETAResult, domain.RouteProgress) {
	now := e.now()
	if len(history) == 0 {
		return domain.ETAResult{Confidence: domain.ConfidenceLow, Trend: domain.TrendStable}, domain.RouteProgress{}
	}
	progress := e.matcher.Match(history, route)

	current := history[len(history)-1]
	remaining := e.remainingDistance(current.Location, destination, route, progress)

	effective := e.speed.EffectiveSpeedKMH(now)
	if effective < e.cfg.StoppedFloorKMH {
		effective = e.cfg.AssumedCruiseKMH
	}

	duration := time.Duration(remaining / 1000 / effective * float64(time.Hour))
	trafficAdjusted := false

	if e.cfg.TrafficAware && e.gateway != nil {
		pctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		res, err := e.gateway.GetDistance(pctx, current.Location, destination)
		cancel()
		if err != nil {
			slog.Debug("traffic lookup failed, using speed-based estimate", "error", err)
		} else if !res.Estimated {
			remaining = res.DistanceM
			duration = res.Duration + res.TrafficDelay
			trafficAdjusted = true
		}
	}

	if duration < e.cfg.MinDuration {
		duration = e.cfg.MinDuration
	}
	if duration > e.cfg.MaxDuration {
		duration = e.cfg.MaxDuration
	}

	result := domain.ETAResult{
		EstimatedArrival:   now.Add(duration),
		RemainingDistanceM: remaining,
		RemainingDuration:  duration,
		CurrentSpeedKMH:    e.speed.CurrentSpeedKMH(),
		AverageSpeedKMH:    e.speed.AverageSpeedKMH(now, e.cfg.AverageWindow),
		ProgressPercent:    progressPercent(route, remaining),
		Confidence:         e.confidenceTier(progress, remaining, len(history)),
		Trend:              e.speed.Trend(now),
		TrafficAdjusted:    trafficAdjusted,
	}

	if e.original != nil {
		delay := int(result.EstimatedArrival.Sub(*e.original).Minutes())
		result.DelayMinutes = &delay
	}
	return result, progress
}

// remainingDistance prefers the planned-route remainder past the matched
// anchor; without a usable match it falls back to the direct line.
func (e *ETAEstimator) remainingDistance(current, destination geo.Point, route *domain.PlannedRoute, progress domain.RouteProgress) float64 {
	if route != nil && len(route.Points) >= 2 && progress.OnRoute {
		rem := route.DistanceM - progress.DistanceAlongM
		if rem < 0 {
			rem = 0
		}
		return rem
	}
	return geo.Distance(current, destination)
}

func (e *ETAEstimator) confidenceTier(progress domain.RouteProgress, remainingM float64, samples int) domain.ConfidenceTier {
	stopped := e.speed.CurrentSpeedKMH() < e.cfg.StoppedFloorKMH && e.speed.SampleCount() > 0
	if !progress.OnRoute || stopped || samples < e.cfg.MinSamplesForETA {
		return domain.ConfidenceLow
	}
	if e.speed.SampleCount() >= e.cfg.AmpleSamples && remainingM > 500 {
		return domain.ConfidenceHigh
	}
	return domain.ConfidenceMedium
}

func progressPercent(route *domain.PlannedRoute, remainingM float64) float64 {
	if route == nil || route.DistanceM <= 0 {
		return 0
	}
	pct := (route.DistanceM - remainingM) / route.DistanceM * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
