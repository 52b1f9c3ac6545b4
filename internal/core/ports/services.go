package ports

import (
	"context"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// EventPublisher publishes engine output to a message broker.
type EventPublisher interface {
	PublishDerivedState(ctx context.Context, state *domain.DerivedState) error
	PublishGeofenceEvent(ctx context.Context, event *domain.GeofenceEvent) error
}

// TrackingCommand starts or stops tracking for one order.
type TrackingCommand struct {
	Action      string                  `json:"action"` // "start" or "stop"
	OrderID     string                  `json:"order_id"`
	Origin      geo.Point               `json:"origin,omitempty"`
	Destination geo.Point               `json:"destination,omitempty"`
	Geofences   []domain.GeofenceTarget `json:"geofences,omitempty"`
}

// EventSubscriber consumes the location stream and tracking commands.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, p *domain.Position) error) error
	SubscribeTrackingCommands(ctx context.Context, handler func(ctx context.Context, cmd *TrackingCommand) error) error
}

// CacheService provides read-through caching for derived state.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
