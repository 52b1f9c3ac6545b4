package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// TrackingSession owns all per-order inference state: the travel-history
// ring, speed estimator, route matcher, geofence targets and ETA baseline.
// Sessions share nothing, so distinct orders process in parallel freely;
// within one session a mutex serialises sample application.
type TrackingSession struct {
	orderID     string
	destination geo.Point

	mu        sync.Mutex
	history   *domain.Ring[domain.Position]
	speed     *SpeedEstimator
	matcher   *RouteMatcher
	eta       *ETAEstimator
	geofences *GeofenceEvaluator
	route     *domain.PlannedRoute
	lastState *domain.DerivedState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTrackingSession builds an isolated session. route may be nil until the
// planned-route supplier resolves one; gateway may be nil when traffic-aware
// estimation is off.
func NewTrackingSession(cfg EngineConfig, orderID string, destination geo.Point, route *domain.PlannedRoute, targets []domain.GeofenceTarget, gateway ports.RouteProvider) *TrackingSession {
	ctx, cancel := context.WithCancel(context.Background())
	speed := NewSpeedEstimator(cfg)
	matcher := NewRouteMatcher(cfg)
	return &TrackingSession{
		orderID:     orderID,
		destination: destination,
		history:     domain.NewRing[domain.Position](cfg.HistorySize),
		speed:       speed,
		matcher:     matcher,
		eta:         NewETAEstimator(cfg, speed, matcher, gateway),
		geofences:   NewGeofenceEvaluator(targets),
		route:       route,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OrderID returns the order this session tracks.
func (s *TrackingSession) OrderID() string { return s.orderID }

// SetRoute replaces the planned route wholesale (re-plan).
func (s *TrackingSession) SetRoute(route *domain.PlannedRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
}

// SetOriginalETA records the trip-start baseline for delay reporting.
func (s *TrackingSession) SetOriginalETA(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eta.SetOriginalETA(t)
}

// ProcessUpdate applies one sample through every evaluator and returns the
// fresh derived state. Invalid or out-of-order samples leave all state
// untouched and return the previous output alongside the rejection error,
// so one bad fix can never corrupt the session.
func (s *TrackingSession) ProcessUpdate(ctx context.Context, p domain.Position) (*domain.DerivedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.Validate(); err != nil {
		return s.lastState, err
	}
	if newest, ok := s.history.Newest(); ok && !p.Time.After(newest.Time) {
		return s.lastState, domain.ErrStaleSample
	}

	s.history.Push(p)
	s.speed.Observe(p)

	// Provider lookups run under the session context so Stop aborts them;
	// the estimator adds its own per-call timeout.
	history := s.history.Snapshot()
	etaRes, progress := s.eta.Estimate(s.ctx, history, s.destination, s.route)
	events := s.geofences.Evaluate(p)

	state := &domain.DerivedState{
		OrderID:  s.orderID,
		Time:     p.Time,
		Position: p,
		Progress: progress,
		ETA:      etaRes,
		Events:   events,
	}
	s.lastState = state
	return state, nil
}

// LastState returns the most recent derived state, or nil before the first
// accepted sample.
func (s *TrackingSession) LastState() *domain.DerivedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastState
}

// ActiveGeofences returns the targets that have not fired yet.
func (s *TrackingSession) ActiveGeofences() []domain.GeofenceTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geofences.Active()
}

// Stop tears the session down and cancels any in-flight provider call.
func (s *TrackingSession) Stop() {
	s.cancel()
}
