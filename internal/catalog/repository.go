package catalog

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
)

type Repository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id int64) (*model.Product, error)
	FindByCode(ctx context.Context, code string) (*model.Product, error)
	FindAll(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	// Update writes descriptive fields only. Quantity belongs to the stock ledger.
	Update(ctx context.Context, product *model.Product) error

	IsCodeUnique(ctx context.Context, code string, excludeID int64) (bool, error)
}
