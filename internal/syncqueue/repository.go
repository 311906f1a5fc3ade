package syncqueue

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
)

type Repository interface {
	Insert(ctx context.Context, entry *model.SyncEntry) error
	FindByID(ctx context.Context, id int64) (*model.SyncEntry, error)
	// Pending and exhausted partition the queue: an entry is exhausted once
	// it is dead-lettered or its attempts reached maxAttempts.
	ListPending(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error)
	ListExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error)

	// IncrementAttempts bumps the attempt counter and returns the stored row.
	IncrementAttempts(ctx context.Context, id int64, cause string, at time.Time) (*model.SyncEntry, error)
	MarkExhausted(ctx context.Context, id int64, at time.Time) error
	// MarkOverdue dead-letters every live entry already at maxAttempts and
	// returns the rows it changed.
	MarkOverdue(ctx context.Context, maxAttempts int, at time.Time) ([]model.SyncEntry, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, maxAttempts int) (*dto.Stats, error)
}
