package syncer

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/syncer/dto"
)

type UseCase interface {
	// Drain replays pending queue entries in FIFO order. Per-entry remote
	// failures are recorded on the entry; only queue storage failures are
	// returned.
	Drain(ctx context.Context) (*dto.DrainReport, error)
	Status(ctx context.Context) (*dto.Status, error)
	// ListExhausted returns the dead-lettered entries under the configured
	// attempt bound.
	ListExhausted(ctx context.Context) ([]model.SyncEntry, error)
	// Run drains on a timer and on reconnect until ctx ends.
	Run(ctx context.Context) error
}

// Acknowledger is told about every entry the remote confirmed.
type Acknowledger interface {
	Acknowledge(ctx context.Context, entry *model.SyncEntry) error
}
