package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
	"github.com/heinnell/ordertrack/internal/pkg/metrics"
)

// TrackerService manages one tracking session per in-progress order and
// fans engine output out to the publisher, snapshot repository and cache.
// gateway resolves planned routes at trip start; publisher is required,
// snapshots and cache are optional collaborators.
type TrackerService struct {
	cfg       EngineConfig
	gateway   ports.RouteProvider
	publisher ports.EventPublisher
	snapshots ports.SnapshotRepository
	cache     ports.CacheService

	mu       sync.Mutex
	sessions map[string]*TrackingSession
}

// NewTrackerService creates an empty session registry.
func NewTrackerService(cfg EngineConfig, gateway ports.RouteProvider, publisher ports.EventPublisher, snapshots ports.SnapshotRepository, cache ports.CacheService) *TrackerService {
	return &TrackerService{
		cfg:       cfg,
		gateway:   gateway,
		publisher: publisher,
		snapshots: snapshots,
		cache:     cache,
		sessions:  make(map[string]*TrackingSession),
	}
}

// StartTracking resolves a planned route and opens a session for the order.
// Route resolution never blocks the start: when every provider fails the
// session begins with a straight two-point route.
func (t *TrackerService) StartTracking(ctx context.Context, orderID string, origin, destination geo.Point, targets []domain.GeofenceTarget) (*TrackingSession, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id must not be empty")
	}
	if !origin.Valid() || !destination.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}

	t.mu.Lock()
	if _, ok := t.sessions[orderID]; ok {
		t.mu.Unlock()
		return nil, domain.ErrSessionExists
	}
	t.mu.Unlock()

	route := t.resolveRoute(ctx, orderID, origin, destination)

	var gateway ports.RouteProvider
	if t.cfg.TrafficAware {
		gateway = t.gateway
	}
	session := NewTrackingSession(t.cfg, orderID, destination, route, targets, gateway)
	if route.Duration > 0 {
		session.SetOriginalETA(time.Now().Add(route.Duration))
	}

	t.mu.Lock()
	if _, ok := t.sessions[orderID]; ok {
		t.mu.Unlock()
		session.Stop()
		return nil, domain.ErrSessionExists
	}
	t.sessions[orderID] = session
	t.mu.Unlock()

	metrics.ActiveSessions.Inc()
	slog.Info("tracking started",
		"order_id", orderID,
		"route_source", route.Source,
		"route_distance_m", route.DistanceM,
		"geofences", len(targets))
	return session, nil
}

// StopTracking closes the order's session and discards its state.
func (t *TrackerService) StopTracking(orderID string) error {
	t.mu.Lock()
	session, ok := t.sessions[orderID]
	if ok {
		delete(t.sessions, orderID)
	}
	t.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Stop()
	metrics.ActiveSessions.Dec()
	slog.Info("tracking stopped", "order_id", orderID)
	return nil
}

// ProcessPosition routes one sample to its session and publishes the output.
// Rejected samples are counted, logged at debug and otherwise ignored; the
// engine's worst outcome for a bad fix is "no state change".
func (t *TrackerService) ProcessPosition(ctx context.Context, p *domain.Position) error {
	t.mu.Lock()
	session, ok := t.sessions[p.OrderID]
	t.mu.Unlock()
	if !ok {
		metrics.PositionsRejected.WithLabelValues("no_session").Inc()
		return domain.ErrSessionNotFound
	}

	state, err := session.ProcessUpdate(ctx, *p)
	if err != nil {
		reason := "invalid"
		if err == domain.ErrStaleSample {
			reason = "stale"
		}
		metrics.PositionsRejected.WithLabelValues(reason).Inc()
		slog.Debug("position rejected", "order_id", p.OrderID, "reason", err)
		return nil
	}
	metrics.PositionsIngested.Inc()

	t.emit(ctx, state)
	return nil
}

// HandleCommand applies a start/stop tracking command from the order
// workflow collaborator.
func (t *TrackerService) HandleCommand(ctx context.Context, cmd *ports.TrackingCommand) error {
	switch cmd.Action {
	case "start":
		_, err := t.StartTracking(ctx, cmd.OrderID, cmd.Origin, cmd.Destination, cmd.Geofences)
		if err == domain.ErrSessionExists {
			return nil // idempotent start
		}
		return err
	case "stop":
		if err := t.StopTracking(cmd.OrderID); err == domain.ErrSessionNotFound {
			return nil // idempotent stop
		} else if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown tracking command %q", cmd.Action)
	}
}

// ActiveSessions returns the number of orders currently tracked.
func (t *TrackerService) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// resolveRoute asks the gateway for a planned path and falls back to the
// straight origin-destination line when the lookup fails outright.
func (t *TrackerService) resolveRoute(ctx context.Context, orderID string, origin, destination geo.Point) *domain.PlannedRoute {
	if t.gateway != nil {
		rctx, cancel := context.WithTimeout(ctx, t.cfg.ProviderTimeout)
		defer cancel()
		if res, err := t.gateway.GetRoute(rctx, origin, destination); err == nil && len(res.Points) >= 2 {
			return domain.NewPlannedRoute(orderID, res.Points, res.Duration, res.Provider)
		} else if err != nil {
			slog.Warn("route resolution failed, using straight-line plan", "order_id", orderID, "error", err)
		}
	}
	return domain.NewPlannedRoute(orderID, []geo.Point{origin, destination}, 0, "fallback")
}

// emit publishes and persists derived state. Collaborator failures are soft:
// logged and counted, never propagated into the ingestion path.
func (t *TrackerService) emit(ctx context.Context, state *domain.DerivedState) {
	if state == nil {
		return
	}

	if err := t.publisher.PublishDerivedState(ctx, state); err != nil {
		slog.Warn("publish derived state failed", "order_id", state.OrderID, "error", err)
	}
	for i := range state.Events {
		metrics.GeofenceFires.Inc()
		if err := t.publisher.PublishGeofenceEvent(ctx, &state.Events[i]); err != nil {
			slog.Warn("publish geofence event failed", "order_id", state.OrderID, "target", state.Events[i].Target.Name, "error", err)
		}
	}

	if t.snapshots != nil {
		if err := t.snapshots.InsertPosition(ctx, &state.Position); err != nil {
			slog.Warn("persist position failed", "order_id", state.OrderID, "error", err)
		}
		if err := t.snapshots.InsertDerivedState(ctx, state); err != nil {
			slog.Warn("persist derived state failed", "order_id", state.OrderID, "error", err)
		}
	}

	if t.cache != nil {
		if data, err := json.Marshal(state); err == nil {
			_ = t.cache.Set(ctx, "tracking:latest:"+state.OrderID, data, 300)
		}
	}
}
