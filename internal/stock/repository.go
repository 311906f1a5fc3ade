package stock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
)

type Repository interface {
	FindProduct(ctx context.Context, id int64) (*model.Product, error)
	UpdateQuantity(ctx context.Context, productID, quantity int64, at time.Time) error
	InsertMovement(ctx context.Context, m *model.StockMovement) error
	ListLowStock(ctx context.Context) ([]model.Product, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)

	// MarkMovementSynced clears sync_pending. Audited quantities are never
	// rewritten.
	MarkMovementSynced(ctx context.Context, id int64) error
}
