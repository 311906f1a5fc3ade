package catalog

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
)

type UseCase interface {
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetProductByCode(ctx context.Context, code string) (*model.Product, error)
	ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error)
	DeactivateProduct(ctx context.Context, id int64) (*model.Product, error)
}

// ListCache stores ListProducts pages. Implementations must tolerate being
// invalidated concurrently with reads.
type ListCache interface {
	Get(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, bool)
	Set(ctx context.Context, filters *dto.ProductFilters, products []model.Product, count int)
	Invalidate(ctx context.Context)
}
