package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/heinnell/ordertrack/internal/core/domain"
)

// SnapshotRepo implements ports.SnapshotRepository. Raw fixes go into
// order_positions for audit; the full derived state is stored as JSONB so the
// estimate payload can evolve without migrations.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) InsertPosition(ctx context.Context, p *domain.Position) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO order_positions (time, order_id, vehicle_id, lat, lon, accuracy_m, speed_kmh, bearing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.Time, p.OrderID, nilIfEmpty(p.VehicleID),
		p.Location.Lat, p.Location.Lon, p.AccuracyM, p.SpeedKMH, p.Bearing)
	return err
}

func (r *SnapshotRepo) InsertDerivedState(ctx context.Context, state *domain.DerivedState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO tracking_snapshots (time, order_id, estimated_arrival, remaining_distance_m, progress_percent, confidence, on_route, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, state.Time, state.OrderID,
		state.ETA.EstimatedArrival, state.ETA.RemainingDistanceM,
		state.ETA.ProgressPercent, string(state.ETA.Confidence), state.Progress.OnRoute,
		payload)
	return err
}

func (r *SnapshotRepo) LatestByOrder(ctx context.Context, orderID string) (*domain.DerivedState, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT state
		FROM tracking_snapshots
		WHERE order_id = $1
		ORDER BY time DESC
		LIMIT 1
	`, orderID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var state domain.DerivedState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
