package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream. Location
// updates arrive on tracking.location.<orderID>; JetStream delivers each
// subject in publish order, which the engine's in-order ingestion relies on.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection, ensuring
// the location stream exists so the worker can start before any publisher.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "TRACKING_LOCATIONS",
			Subjects:  []string{"tracking.location.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "TRACKING_COMMANDS",
			Subjects:  []string{"tracking.command.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePositions consumes the location stream.
func (s *Subscriber) SubscribePositions(ctx context.Context, handler func(ctx context.Context, p *domain.Position) error) error {
	sub, err := s.js.Subscribe("tracking.location.>", func(msg *nats.Msg) {
		var p domain.Position
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			// Malformed payloads can never succeed; drop instead of redelivering.
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &p); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("tracker-positions"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeTrackingCommands consumes start/stop commands from the order
// workflow collaborator.
func (s *Subscriber) SubscribeTrackingCommands(ctx context.Context, handler func(ctx context.Context, cmd *ports.TrackingCommand) error) error {
	sub, err := s.js.Subscribe("tracking.command.>", func(msg *nats.Msg) {
		var cmd ports.TrackingCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &cmd); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("tracker-commands"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Conn exposes the underlying connection for health checks.
func (s *Subscriber) Conn() *nats.Conn { return s.conn }

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
