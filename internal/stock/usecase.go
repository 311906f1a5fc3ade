package stock

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
)

type UseCase interface {
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*dto.AdjustStockResult, error)
	ListLowStock(ctx context.Context) ([]model.Product, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)

	// Acknowledge is called once the remote confirmed a queued entry.
	Acknowledge(ctx context.Context, entry *model.SyncEntry) error
}
