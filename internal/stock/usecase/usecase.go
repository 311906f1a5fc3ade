package usecase

import (
	"context"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/auth"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/lock"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	queuedto "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
	"go.uber.org/zap"
)

type stockUseCase struct {
	repo      stock.Repository
	txm       sqlite.Transactor
	locker    lock.Locker
	queue     syncqueue.UseCase
	gate      *syncqueue.Gate
	publisher events.Publisher
	logger    logger.ZapLogger
}

func NewStockUseCase(
	repo stock.Repository,
	txm sqlite.Transactor,
	locker lock.Locker,
	queue syncqueue.UseCase,
	gate *syncqueue.Gate,
	publisher events.Publisher,
	log logger.ZapLogger,
) stock.UseCase {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &stockUseCase{
		repo:      repo,
		txm:       txm,
		locker:    locker,
		queue:     queue,
		gate:      gate,
		publisher: publisher,
		logger:    log,
	}
}

func (uc *stockUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*dto.AdjustStockResult, error) {
	const op = "stock.AdjustStock"

	if input.ProductID <= 0 {
		return nil, apperror.Invalid(op, "invalid product id %d", input.ProductID)
	}
	if input.Amount < 0 {
		return nil, apperror.Invalid(op, "amount must not be negative, got %d", input.Amount)
	}
	kind, reason, err := stock.Classify(input.Reason)
	if err != nil {
		return nil, err
	}
	actor := input.Actor
	if actor == "" {
		actor = auth.GetActor(ctx)
	}

	var queued bool
	if input.Exclusive {
		if !sqlite.InTx(ctx) {
			return nil, apperror.Invalid(op, "exclusive adjustment outside a transaction")
		}
		queued = input.Queue
	} else {
		// Asked before the transaction so a slow ping never holds the database.
		queued = uc.gate.ShouldQueue(ctx)

		unlock, err := uc.locker.Lock(ctx, strconv.FormatInt(input.ProductID, 10))
		if err != nil {
			uc.logger.Warn("failed to acquire product lock",
				zap.Int64("product_id", input.ProductID),
				zap.Error(err),
			)
			return nil, err
		}
		defer unlock()
	}

	var (
		result   *dto.AdjustStockResult
		movement *model.StockMovement
	)
	err = uc.txm.WithinTx(ctx, func(ctx context.Context) error {
		p, err := uc.repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}

		before := p.Quantity
		after := before + input.Amount
		clamped := false
		if kind == model.MovementOutbound {
			after = before - input.Amount
			if after < 0 {
				after = 0
				clamped = true
			}
		}

		now := time.Now().UTC()
		if err := uc.repo.UpdateQuantity(ctx, p.ID, after, now); err != nil {
			return err
		}

		movement = &model.StockMovement{
			ProductID:      p.ID,
			Kind:           kind,
			Reason:         reason,
			Amount:         input.Amount,
			Delta:          after - before,
			QuantityBefore: before,
			QuantityAfter:  after,
			Clamped:        clamped,
			Actor:          actor,
			SyncPending:    queued,
			CreatedAt:      now,
		}
		if err := uc.repo.InsertMovement(ctx, movement); err != nil {
			return err
		}

		p.Quantity = after
		p.UpdatedAt = now

		if queued {
			if err := uc.enqueue(ctx, p, movement); err != nil {
				return err
			}
		}

		result = &dto.AdjustStockResult{
			ProductID:        p.ID,
			PreviousQuantity: before,
			NewQuantity:      after,
			MovementID:       movement.ID,
			Kind:             kind,
			Clamped:          clamped,
			LowStock:         p.IsLowStock(),
			Queued:           queued,
		}
		return nil
	})
	if err != nil {
		if apperror.Is(err, apperror.KindLocalStorage) {
			uc.logger.Error("stock adjustment rolled back",
				zap.Int64("product_id", input.ProductID),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if result.Clamped {
		uc.logger.Warn("outbound amount exceeded stock, quantity clamped to zero",
			zap.Int64("product_id", result.ProductID),
			zap.Int64("amount", input.Amount),
			zap.Int64("previous_quantity", result.PreviousQuantity),
		)
	}

	ev := events.StockAdjusted{
		ProductID:        result.ProductID,
		MovementID:       result.MovementID,
		Kind:             string(kind),
		Reason:           reason,
		Amount:           input.Amount,
		PreviousQuantity: result.PreviousQuantity,
		NewQuantity:      result.NewQuantity,
		Clamped:          result.Clamped,
		LowStock:         result.LowStock,
		Actor:            actor,
		Queued:           queued,
		OccurredAt:       movement.CreatedAt,
	}
	sqlite.AfterCommit(ctx, func() { uc.publisher.Publish(ev) })

	return result, nil
}

func (uc *stockUseCase) enqueue(ctx context.Context, p *model.Product, m *model.StockMovement) error {
	productKey := strconv.FormatInt(p.ID, 10)
	if _, err := uc.queue.Enqueue(ctx, &queuedto.EnqueueInput{
		Operation: string(model.OpUpdate),
		Table:     model.TableProducts,
		RecordKey: productKey,
		Payload:   p,
	}); err != nil {
		return err
	}
	_, err := uc.queue.Enqueue(ctx, &queuedto.EnqueueInput{
		Operation: string(model.OpInsert),
		Table:     model.TableStockMovements,
		RecordKey: strconv.FormatInt(m.ID, 10),
		Payload:   m,
	})
	return err
}

func (uc *stockUseCase) ListLowStock(ctx context.Context) ([]model.Product, error) {
	return uc.repo.ListLowStock(ctx)
}

func (uc *stockUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	if filters.Kind != "" && filters.Kind != model.MovementInbound && filters.Kind != model.MovementOutbound {
		return nil, 0, apperror.Invalid("stock.ListMovements", "unknown movement kind %q", filters.Kind)
	}
	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		return nil, 0, apperror.Invalid("stock.ListMovements", "range end precedes range start")
	}
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *stockUseCase) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return uc.repo.FindProduct(ctx, id)
}

func (uc *stockUseCase) Acknowledge(ctx context.Context, entry *model.SyncEntry) error {
	if entry.TableName != model.TableStockMovements || entry.Operation != model.OpInsert {
		return nil
	}
	id, err := strconv.ParseInt(entry.RecordKey, 10, 64)
	if err != nil {
		uc.logger.Warn("acknowledged movement entry has no numeric key",
			zap.Int64("entry_id", entry.ID),
			zap.String("record_key", entry.RecordKey),
		)
		return nil
	}
	return uc.repo.MarkMovementSynced(ctx, id)
}
