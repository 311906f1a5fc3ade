package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/auth"
	"github.com/fekuna/omnipos-offline-sync/internal/catalog"
	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/lock"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	stockdto "github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	queuedto "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCategory    = "general"
	defaultMinQuantity = 5
)

var defaultTaxRate = decimal.NewFromInt(21)

type catalogUseCase struct {
	repo   catalog.Repository
	txm    sqlite.Transactor
	locker lock.Locker
	stock  stock.UseCase
	queue  syncqueue.UseCase
	gate   *syncqueue.Gate
	cache  catalog.ListCache
	logger logger.ZapLogger
}

// NewCatalogUseCase accepts a nil cache.
func NewCatalogUseCase(
	repo catalog.Repository,
	txm sqlite.Transactor,
	locker lock.Locker,
	stockUC stock.UseCase,
	queue syncqueue.UseCase,
	gate *syncqueue.Gate,
	cache catalog.ListCache,
	log logger.ZapLogger,
) catalog.UseCase {
	return &catalogUseCase{
		repo:   repo,
		txm:    txm,
		locker: locker,
		stock:  stockUC,
		queue:  queue,
		gate:   gate,
		cache:  cache,
		logger: log,
	}
}

func (uc *catalogUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error) {
	const op = "catalog.CreateProduct"

	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, apperror.Invalid(op, "code and name are required")
	}
	if input.Price.IsNegative() || input.Cost.IsNegative() {
		return nil, apperror.Invalid(op, "price and cost must not be negative")
	}
	if input.InitialStock < 0 {
		return nil, apperror.Invalid(op, "initial stock must not be negative")
	}

	taxRate := defaultTaxRate
	if input.TaxRate != nil {
		taxRate = *input.TaxRate
	}
	minQuantity := int64(defaultMinQuantity)
	if input.MinQuantity != nil {
		minQuantity = *input.MinQuantity
	}
	if minQuantity < 0 || taxRate.IsNegative() {
		return nil, apperror.Invalid(op, "minimum quantity and tax rate must not be negative")
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = defaultCategory
	}

	actor := input.Actor
	if actor == "" {
		actor = auth.GetActor(ctx)
	}

	queued := uc.gate.ShouldQueue(ctx)
	now := time.Now().UTC()
	p := &model.Product{
		BaseModel:   model.BaseModel{CreatedAt: now, UpdatedAt: now},
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		Price:       input.Price,
		Cost:        input.Cost,
		TaxRate:     taxRate,
		Quantity:    0,
		MinQuantity: minQuantity,
		IsActive:    true,
	}

	err := uc.txm.WithinTx(ctx, func(ctx context.Context) error {
		unique, err := uc.repo.IsCodeUnique(ctx, code, 0)
		if err != nil {
			return err
		}
		if !unique {
			return apperror.Conflict(op, "code %q already exists", code)
		}
		if err := uc.repo.Create(ctx, p); err != nil {
			return err
		}
		if queued {
			if err := uc.enqueue(ctx, model.OpInsert, p); err != nil {
				return err
			}
		}
		if input.InitialStock == 0 {
			return nil
		}

		// The row is uncommitted, so no other writer can reach it.
		if _, err := uc.stock.AdjustStock(ctx, &stockdto.AdjustStockInput{
			ProductID: p.ID,
			Amount:    input.InitialStock,
			Reason:    stock.ReasonInitial,
			Actor:     actor,
			Exclusive: true,
			Queue:     queued,
		}); err != nil {
			return err
		}
		created, err := uc.repo.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		p = created
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.KindLocalStorage) {
			uc.logger.Error("product creation rolled back", zap.String("code", code), zap.Error(err))
		}
		return nil, err
	}

	uc.logger.Info("product created",
		zap.Int64("product_id", p.ID),
		zap.String("code", p.Code),
		zap.Int64("quantity", p.Quantity),
		zap.Bool("queued", queued),
	)
	uc.invalidate(ctx)
	return p, nil
}

func (uc *catalogUseCase) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return uc.repo.FindByID(ctx, id)
}

func (uc *catalogUseCase) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.Invalid("catalog.GetProductByCode", "code is required")
	}
	return uc.repo.FindByCode(ctx, code)
}

func (uc *catalogUseCase) ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	switch filters.SortBy {
	case "", "name", "price", "quantity", "created_at":
	default:
		return nil, 0, apperror.Invalid("catalog.ListProducts", "cannot sort by %q", filters.SortBy)
	}

	if uc.cache != nil {
		if products, count, ok := uc.cache.Get(ctx, filters); ok {
			return products, count, nil
		}
	}

	products, count, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	if uc.cache != nil {
		uc.cache.Set(ctx, filters, products, count)
	}
	return products, count, nil
}

func (uc *catalogUseCase) UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error) {
	const op = "catalog.UpdateProduct"

	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, apperror.Invalid(op, "code and name are required")
	}
	if input.Price.IsNegative() || input.Cost.IsNegative() || input.TaxRate.IsNegative() || input.MinQuantity < 0 {
		return nil, apperror.Invalid(op, "prices, tax rate and minimum quantity must not be negative")
	}
	if input.Quantity != nil && *input.Quantity < 0 {
		return nil, apperror.Invalid(op, "quantity must not be negative, got %d", *input.Quantity)
	}
	actor := input.Actor
	if actor == "" {
		actor = auth.GetActor(ctx)
	}

	queued := uc.gate.ShouldQueue(ctx)

	// A stock target needs the product lock before the transaction, the
	// same order AdjustStock uses.
	if input.Quantity != nil {
		unlock, err := uc.locker.Lock(ctx, strconv.FormatInt(input.ID, 10))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	var p *model.Product
	err := uc.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = uc.repo.FindByID(ctx, input.ID)
		if err != nil {
			return err
		}

		if input.Quantity != nil && *input.Quantity != p.Quantity {
			if err := uc.bookTarget(ctx, p, *input.Quantity, actor, queued); err != nil {
				return err
			}
			if p, err = uc.repo.FindByID(ctx, input.ID); err != nil {
				return err
			}
		}

		if p.Code != code {
			unique, err := uc.repo.IsCodeUnique(ctx, code, p.ID)
			if err != nil {
				return err
			}
			if !unique {
				return apperror.Conflict(op, "code %q already exists", code)
			}
		}

		p.Code = code
		p.Name = name
		p.Description = strings.TrimSpace(input.Description)
		if c := strings.TrimSpace(input.Category); c != "" {
			p.Category = c
		}
		p.Price = input.Price
		p.Cost = input.Cost
		p.TaxRate = input.TaxRate
		p.MinQuantity = input.MinQuantity
		p.IsActive = input.IsActive
		p.UpdatedAt = time.Now().UTC()

		if err := uc.repo.Update(ctx, p); err != nil {
			return err
		}
		if queued {
			return uc.enqueue(ctx, model.OpUpdate, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	return p, nil
}

func (uc *catalogUseCase) DeactivateProduct(ctx context.Context, id int64) (*model.Product, error) {
	queued := uc.gate.ShouldQueue(ctx)
	var p *model.Product
	err := uc.txm.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = uc.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return nil
		}

		p.IsActive = false
		p.UpdatedAt = time.Now().UTC()
		if err := uc.repo.Update(ctx, p); err != nil {
			return err
		}
		if queued {
			return uc.enqueue(ctx, model.OpUpdate, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("product deactivated", zap.Int64("product_id", id))
	uc.invalidate(ctx)
	return p, nil
}

// bookTarget moves stock to target through the ledger. The caller holds the
// product lock and a transaction.
func (uc *catalogUseCase) bookTarget(ctx context.Context, p *model.Product, target int64, actor string, queued bool) error {
	reason := stock.ReasonManualInbound
	amount := target - p.Quantity
	if amount < 0 {
		reason = stock.ReasonManualOutbound
		amount = -amount
	}
	res, err := uc.stock.AdjustStock(ctx, &stockdto.AdjustStockInput{
		ProductID: p.ID,
		Amount:    amount,
		Reason:    reason,
		Actor:     actor,
		Exclusive: true,
		Queue:     queued,
	})
	if err != nil {
		return err
	}
	uc.logger.Info("stock set from product update",
		zap.Int64("product_id", p.ID),
		zap.Int64("previous_quantity", res.PreviousQuantity),
		zap.Int64("new_quantity", res.NewQuantity),
	)
	return nil
}

func (uc *catalogUseCase) enqueue(ctx context.Context, op model.Operation, p *model.Product) error {
	_, err := uc.queue.Enqueue(ctx, &queuedto.EnqueueInput{
		Operation: string(op),
		Table:     model.TableProducts,
		RecordKey: strconv.FormatInt(p.ID, 10),
		Payload:   p,
	})
	return err
}

func (uc *catalogUseCase) invalidate(ctx context.Context) {
	if uc.cache != nil {
		uc.cache.Invalidate(ctx)
	}
}
