package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/jmoiron/sqlx"
)

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) FindProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &p, `SELECT * FROM products WHERE id = ? LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("stock.FindProduct", "product %d not found", id)
		}
		return nil, apperror.Storage("stock.FindProduct", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) UpdateQuantity(ctx context.Context, productID, quantity int64, at time.Time) error {
	res, err := sqlite.Executor(ctx, r.DB).ExecContext(ctx,
		`UPDATE products SET quantity = ?, updated_at = ? WHERE id = ?`, quantity, at, productID)
	if err != nil {
		return apperror.Storage("stock.UpdateQuantity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Storage("stock.UpdateQuantity", err)
	}
	if n == 0 {
		return apperror.NotFound("stock.UpdateQuantity", "product %d not found", productID)
	}
	return nil
}

func (r *SQLiteRepository) InsertMovement(ctx context.Context, m *model.StockMovement) error {
	query := `
        INSERT INTO stock_movements (
            product_id, kind, reason, amount, delta, quantity_before,
            quantity_after, clamped, actor, sync_pending, created_at
        )
        VALUES (
            :product_id, :kind, :reason, :amount, :delta, :quantity_before,
            :quantity_after, :clamped, :actor, :sync_pending, :created_at
        )
    `
	res, err := sqlite.Executor(ctx, r.DB).NamedExecContext(ctx, query, m)
	if err != nil {
		return apperror.Storage("stock.InsertMovement", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperror.Storage("stock.InsertMovement", err)
	}
	m.ID = id
	return nil
}

func (r *SQLiteRepository) ListLowStock(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	query := `
        SELECT * FROM products
        WHERE is_active = 1 AND quantity <= min_quantity
        ORDER BY quantity ASC, id ASC
    `
	if err := sqlite.Executor(ctx, r.DB).SelectContext(ctx, &products, query); err != nil {
		return nil, apperror.Storage("stock.ListLowStock", err)
	}
	return products, nil
}

func (r *SQLiteRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	exec := sqlite.Executor(ctx, r.DB)
	movements := []model.StockMovement{}
	var count int

	conditions := []string{}
	args := []interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, f.To.UTC())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := exec.GetContext(ctx, &count, "SELECT count(*) FROM stock_movements"+whereClause, args...); err != nil {
		return nil, 0, apperror.Storage("stock.ListMovements", err)
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY id DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	if err := exec.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, 0, apperror.Storage("stock.ListMovements", err)
	}
	return movements, count, nil
}

func (r *SQLiteRepository) MarkMovementSynced(ctx context.Context, id int64) error {
	_, err := sqlite.Executor(ctx, r.DB).ExecContext(ctx,
		`UPDATE stock_movements SET sync_pending = 0 WHERE id = ?`, id)
	if err != nil {
		return apperror.Storage("stock.MarkMovementSynced", err)
	}
	return nil
}
