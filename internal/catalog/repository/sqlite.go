package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, p *model.Product) error {
	query := `
        INSERT INTO products (
            code, name, description, category, price, cost, tax_rate,
            quantity, min_quantity, is_active, created_at, updated_at
        )
        VALUES (
            :code, :name, :description, :category, :price, :cost, :tax_rate,
            :quantity, :min_quantity, :is_active, :created_at, :updated_at
        )
    `
	res, err := sqlite.Executor(ctx, r.DB).NamedExecContext(ctx, query, p)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("catalog.Create", "code %q already exists", p.Code)
		}
		return apperror.Storage("catalog.Create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperror.Storage("catalog.Create", err)
	}
	p.ID = id
	return nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &product, `SELECT * FROM products WHERE id = ? LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("catalog.FindByID", "product %d not found", id)
		}
		return nil, apperror.Storage("catalog.FindByID", err)
	}
	return &product, nil
}

func (r *SQLiteRepository) FindByCode(ctx context.Context, code string) (*model.Product, error) {
	var product model.Product
	err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &product, `SELECT * FROM products WHERE code = ? LIMIT 1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("catalog.FindByCode", "product with code %q not found", code)
		}
		return nil, apperror.Storage("catalog.FindByCode", err)
	}
	return &product, nil
}

func (r *SQLiteRepository) FindAll(ctx context.Context, f *dto.ProductFilters) ([]model.Product, int, error) {
	exec := sqlite.Executor(ctx, r.DB)
	products := []model.Product{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.IsActive != nil {
		conditions = append(conditions, "is_active = :is_active")
		args["is_active"] = *f.IsActive
	}
	if f.SearchQuery != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		conditions = append(conditions, "(name LIKE :search OR code LIKE :search)")
		args["search"] = "%" + f.SearchQuery + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM products"+whereClause, args)
	if err != nil {
		return nil, 0, apperror.Storage("catalog.FindAll", err)
	}
	if err := exec.GetContext(ctx, &count, countQuery, countArgs...); err != nil {
		return nil, 0, apperror.Storage("catalog.FindAll", err)
	}

	orderBy := "created_at DESC, id DESC"
	if f.SortBy != "" {
		// Whitelisted, never interpolated from input.
		switch f.SortBy {
		case "name":
			orderBy = "name"
		case "price":
			orderBy = "CAST(price AS REAL)"
		case "quantity":
			orderBy = "quantity"
		default:
			orderBy = "created_at"
		}
		if strings.ToLower(f.SortOrder) == "desc" {
			orderBy += " DESC"
		} else {
			orderBy += " ASC"
		}
		orderBy += ", id ASC"
	}

	query := fmt.Sprintf("SELECT * FROM products%s ORDER BY %s", whereClause, orderBy)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	listQuery, listArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, apperror.Storage("catalog.FindAll", err)
	}
	if err := exec.SelectContext(ctx, &products, listQuery, listArgs...); err != nil {
		return nil, 0, apperror.Storage("catalog.FindAll", err)
	}

	return products, count, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, p *model.Product) error {
	query := `
        UPDATE products
        SET code = :code,
            name = :name,
            description = :description,
            category = :category,
            price = :price,
            cost = :cost,
            tax_rate = :tax_rate,
            min_quantity = :min_quantity,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := sqlite.Executor(ctx, r.DB).NamedExecContext(ctx, query, p)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("catalog.Update", "code %q already exists", p.Code)
		}
		return apperror.Storage("catalog.Update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Storage("catalog.Update", err)
	}
	if n == 0 {
		return apperror.NotFound("catalog.Update", "product %d not found", p.ID)
	}
	return nil
}

func (r *SQLiteRepository) IsCodeUnique(ctx context.Context, code string, excludeID int64) (bool, error) {
	var count int
	query := `SELECT count(*) FROM products WHERE code = ?`
	args := []interface{}{code}
	if excludeID != 0 {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}

	if err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &count, query, args...); err != nil {
		return false, apperror.Storage("catalog.IsCodeUnique", err)
	}
	return count == 0, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
