package syncqueue

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
)

type UseCase interface {
	Enqueue(ctx context.Context, input *dto.EnqueueInput) (*model.SyncEntry, error)
	ListPending(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error)
	RecordAttemptFailure(ctx context.Context, id int64, cause string) (*model.SyncEntry, error)
	MarkExhausted(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
	Stats(ctx context.Context, maxAttempts int) (*dto.Stats, error)
	ListExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error)
	// SweepExhausted dead-letters entries that reached maxAttempts without
	// being marked, e.g. after the bound was lowered.
	SweepExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error)
}
