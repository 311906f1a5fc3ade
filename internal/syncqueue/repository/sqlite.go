package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
	"github.com/jmoiron/sqlx"
)

// Both clauses take maxAttempts as their single argument.
const (
	pendingClause   = `exhausted_at IS NULL AND attempts < ?`
	exhaustedClause = `(exhausted_at IS NOT NULL OR attempts >= ?)`
)

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *model.SyncEntry) error {
	query := `
        INSERT INTO sync_queue (
            operation, table_name, record_key, payload, idempotency_key,
            attempts, last_error, enqueued_at, updated_at
        )
        VALUES (
            :operation, :table_name, :record_key, :payload, :idempotency_key,
            :attempts, :last_error, :enqueued_at, :updated_at
        )
    `
	res, err := sqlite.Executor(ctx, r.DB).NamedExecContext(ctx, query, e)
	if err != nil {
		return apperror.Storage("syncqueue.Insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperror.Storage("syncqueue.Insert", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*model.SyncEntry, error) {
	var e model.SyncEntry
	err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &e, `SELECT * FROM sync_queue WHERE id = ? LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("syncqueue.FindByID", "sync entry %d not found", id)
		}
		return nil, apperror.Storage("syncqueue.FindByID", err)
	}
	return &e, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error) {
	entries := []model.SyncEntry{}
	query := `SELECT * FROM sync_queue WHERE ` + pendingClause + ` ORDER BY id ASC`
	if err := sqlite.Executor(ctx, r.DB).SelectContext(ctx, &entries, query, maxAttempts); err != nil {
		return nil, apperror.Storage("syncqueue.ListPending", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) ListExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error) {
	entries := []model.SyncEntry{}
	query := `SELECT * FROM sync_queue WHERE ` + exhaustedClause + ` ORDER BY id ASC`
	if err := sqlite.Executor(ctx, r.DB).SelectContext(ctx, &entries, query, maxAttempts); err != nil {
		return nil, apperror.Storage("syncqueue.ListExhausted", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) IncrementAttempts(ctx context.Context, id int64, cause string, at time.Time) (*model.SyncEntry, error) {
	var e model.SyncEntry
	query := `
        UPDATE sync_queue
        SET attempts = attempts + 1, last_error = ?, updated_at = ?
        WHERE id = ?
        RETURNING *
    `
	err := sqlite.Executor(ctx, r.DB).GetContext(ctx, &e, query, cause, at, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("syncqueue.IncrementAttempts", "sync entry %d not found", id)
		}
		return nil, apperror.Storage("syncqueue.IncrementAttempts", err)
	}
	return &e, nil
}

func (r *SQLiteRepository) MarkExhausted(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE sync_queue SET exhausted_at = ?, updated_at = ? WHERE id = ? AND exhausted_at IS NULL`
	if _, err := sqlite.Executor(ctx, r.DB).ExecContext(ctx, query, at, at, id); err != nil {
		return apperror.Storage("syncqueue.MarkExhausted", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkOverdue(ctx context.Context, maxAttempts int, at time.Time) ([]model.SyncEntry, error) {
	entries := []model.SyncEntry{}
	query := `
        UPDATE sync_queue
        SET exhausted_at = ?, updated_at = ?
        WHERE exhausted_at IS NULL AND attempts >= ?
        RETURNING *
    `
	if err := sqlite.Executor(ctx, r.DB).SelectContext(ctx, &entries, query, at, at, maxAttempts); err != nil {
		return nil, apperror.Storage("syncqueue.MarkOverdue", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := sqlite.Executor(ctx, r.DB).ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return apperror.Storage("syncqueue.Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Storage("syncqueue.Delete", err)
	}
	if n == 0 {
		return apperror.NotFound("syncqueue.Delete", "sync entry %d not found", id)
	}
	return nil
}

func (r *SQLiteRepository) Stats(ctx context.Context, maxAttempts int) (*dto.Stats, error) {
	exec := sqlite.Executor(ctx, r.DB)
	stats := &dto.Stats{}

	err := exec.GetContext(ctx, &stats.Pending, `SELECT count(*) FROM sync_queue WHERE `+pendingClause, maxAttempts)
	if err != nil {
		return nil, apperror.Storage("syncqueue.Stats", err)
	}
	err = exec.GetContext(ctx, &stats.Exhausted, `SELECT count(*) FROM sync_queue WHERE `+exhaustedClause, maxAttempts)
	if err != nil {
		return nil, apperror.Storage("syncqueue.Stats", err)
	}

	var oldest time.Time
	err = exec.GetContext(ctx, &oldest,
		`SELECT enqueued_at FROM sync_queue WHERE `+pendingClause+` ORDER BY id ASC LIMIT 1`, maxAttempts)
	switch {
	case err == nil:
		stats.OldestPendingAt = &oldest
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, apperror.Storage("syncqueue.Stats", err)
	}

	return stats, nil
}
