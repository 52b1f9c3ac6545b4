package ports

import (
	"context"

	"github.com/heinnell/ordertrack/internal/core/domain"
)

// SnapshotRepository persists raw positions and derived state for the
// persistence collaborator. The engine itself never reads these back; they
// exist for display and audit.
type SnapshotRepository interface {
	InsertPosition(ctx context.Context, p *domain.Position) error
	InsertDerivedState(ctx context.Context, state *domain.DerivedState) error
	LatestByOrder(ctx context.Context, orderID string) (*domain.DerivedState, error)
}
