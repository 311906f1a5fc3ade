package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/remote"
	"github.com/fekuna/omnipos-offline-sync/internal/syncer"
	"github.com/fekuna/omnipos-offline-sync/internal/syncer/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts     int
	DispatchTimeout time.Duration
	DrainInterval   time.Duration
	// ConnectivityInterval is how often Run polls the oracle to notice a
	// reconnect.
	ConnectivityInterval time.Duration
}

// refresher is implemented by oracles that cache their answer.
type refresher interface {
	Invalidate()
}

type coordinator struct {
	queue      syncqueue.UseCase
	dispatcher remote.Dispatcher
	oracle     remote.Oracle
	acks       []syncer.Acknowledger
	publisher  events.Publisher
	logger     logger.ZapLogger
	cfg        Config

	processing atomic.Bool

	mu          sync.Mutex
	lastDrainAt time.Time
	lastReport  *dto.DrainReport
	lastError   string
}

func NewCoordinator(
	queue syncqueue.UseCase,
	dispatcher remote.Dispatcher,
	oracle remote.Oracle,
	publisher events.Publisher,
	log logger.ZapLogger,
	cfg Config,
	acks ...syncer.Acknowledger,
) syncer.UseCase {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Minute
	}
	if cfg.ConnectivityInterval <= 0 {
		cfg.ConnectivityInterval = 15 * time.Second
	}
	return &coordinator{
		queue:      queue,
		dispatcher: dispatcher,
		oracle:     oracle,
		acks:       acks,
		publisher:  publisher,
		logger:     log,
		cfg:        cfg,
	}
}

func (c *coordinator) Drain(ctx context.Context) (*dto.DrainReport, error) {
	report := &dto.DrainReport{StartedAt: time.Now().UTC()}

	if !c.processing.CompareAndSwap(false, true) {
		report.InProgress = true
		report.FinishedAt = report.StartedAt
		return report, nil
	}
	defer c.processing.Store(false)

	if !c.oracle.IsOnline(ctx) {
		report.Offline = true
		report.FinishedAt = time.Now().UTC()
		c.logger.Debug("remote unreachable, drain skipped")
		return report, nil
	}

	err := c.drain(ctx, report)
	report.FinishedAt = time.Now().UTC()

	c.mu.Lock()
	c.lastDrainAt = report.FinishedAt
	c.lastReport = report
	c.lastError = ""
	if err != nil {
		c.lastError = err.Error()
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("drain aborted", zap.Int("attempted", report.Attempted), zap.Error(err))
		return report, err
	}

	if report.Attempted > 0 {
		c.logger.Info("drain finished",
			zap.Int("attempted", report.Attempted),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("exhausted", report.Exhausted),
		)
	}
	c.publisher.Publish(events.QueueDrained{
		Attempted:  report.Attempted,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Exhausted:  report.Exhausted,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	})
	return report, nil
}

func (c *coordinator) drain(ctx context.Context, report *dto.DrainReport) error {
	overdue, err := c.queue.SweepExhausted(ctx, c.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	for i := range overdue {
		c.deadLetter(&overdue[i], overdue[i].LastError)
	}

	entries, err := c.queue.ListPending(ctx, c.cfg.MaxAttempts)
	if err != nil {
		return err
	}

	for i := range entries {
		if ctx.Err() != nil {
			// Shutdown mid-pass; remaining entries stay pending.
			return nil
		}
		entry := &entries[i]
		report.Attempted++

		cause, ok := c.replay(ctx, entry)
		if ok {
			if err := c.confirm(ctx, entry); err != nil {
				return err
			}
			report.Succeeded++
			continue
		}
		if ctx.Err() != nil {
			report.Attempted--
			return nil
		}

		report.Failed++
		exhausted, err := c.fail(ctx, entry, cause)
		if err != nil {
			return err
		}
		if exhausted {
			report.Exhausted++
		}
	}
	return nil
}

// replay dispatches one entry and returns the failure cause when it did not
// succeed.
func (c *coordinator) replay(ctx context.Context, entry *model.SyncEntry) (string, bool) {
	req, err := remote.RequestFor(entry)
	if err != nil {
		return "invalid entry: " + err.Error(), false
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	defer cancel()

	res, err := c.dispatcher.Send(dctx, req)
	if err != nil {
		category := res.Category
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			category = remote.CategoryTimeout
		}
		if category == "" {
			category = remote.CategoryTransport
		}
		return fmt.Sprintf("%s: %v", category, err), false
	}
	if !res.Success {
		return fmt.Sprintf("%s: HTTP %d", res.Category, res.StatusCode), false
	}
	return "", true
}

func (c *coordinator) confirm(ctx context.Context, entry *model.SyncEntry) error {
	if err := c.queue.Remove(ctx, entry.ID); err != nil {
		if !apperror.Is(err, apperror.KindNotFound) {
			return err
		}
	}
	for _, ack := range c.acks {
		if err := ack.Acknowledge(ctx, entry); err != nil {
			c.logger.Warn("acknowledgement failed",
				zap.Int64("entry_id", entry.ID),
				zap.String("table", entry.TableName),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (c *coordinator) fail(ctx context.Context, entry *model.SyncEntry, cause string) (bool, error) {
	updated, err := c.queue.RecordAttemptFailure(ctx, entry.ID, cause)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	c.logger.Debug("replay failed",
		zap.Int64("entry_id", updated.ID),
		zap.Int("attempts", updated.Attempts),
		zap.String("cause", cause),
	)

	if updated.Attempts < c.cfg.MaxAttempts {
		return false, nil
	}

	if err := c.queue.MarkExhausted(ctx, updated.ID); err != nil {
		return false, err
	}
	c.deadLetter(updated, cause)
	return true, nil
}

func (c *coordinator) deadLetter(entry *model.SyncEntry, cause string) {
	c.logger.Warn("sync entry exhausted its attempts",
		zap.Int64("entry_id", entry.ID),
		zap.String("operation", string(entry.Operation)),
		zap.String("table", entry.TableName),
		zap.String("record_key", entry.RecordKey),
		zap.Int("attempts", entry.Attempts),
		zap.String("last_error", cause),
	)
	c.publisher.Publish(events.EntryExhausted{
		EntryID:    entry.ID,
		Operation:  string(entry.Operation),
		Table:      entry.TableName,
		RecordKey:  entry.RecordKey,
		Attempts:   entry.Attempts,
		LastError:  cause,
		OccurredAt: time.Now().UTC(),
	})
}

func (c *coordinator) ListExhausted(ctx context.Context) ([]model.SyncEntry, error) {
	return c.queue.ListExhausted(ctx, c.cfg.MaxAttempts)
}

func (c *coordinator) Status(ctx context.Context) (*dto.Status, error) {
	stats, err := c.queue.Stats(ctx, c.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}

	status := &dto.Status{
		Pending:         stats.Pending,
		Exhausted:       stats.Exhausted,
		OldestPendingAt: stats.OldestPendingAt,
		MaxAttempts:     c.cfg.MaxAttempts,
		Online:          c.oracle.IsOnline(ctx),
		Processing:      c.processing.Load(),
	}

	c.mu.Lock()
	if !c.lastDrainAt.IsZero() {
		at := c.lastDrainAt
		status.LastDrainAt = &at
	}
	if c.lastReport != nil {
		r := *c.lastReport
		status.LastReport = &r
	}
	status.LastError = c.lastError
	c.mu.Unlock()

	return status, nil
}

func (c *coordinator) Run(ctx context.Context) error {
	c.logger.Info("sync scheduler started",
		zap.Duration("drain_interval", c.cfg.DrainInterval),
		zap.Duration("connectivity_interval", c.cfg.ConnectivityInterval),
	)

	drainTicker := time.NewTicker(c.cfg.DrainInterval)
	defer drainTicker.Stop()
	pingTicker := time.NewTicker(c.cfg.ConnectivityInterval)
	defer pingTicker.Stop()

	online := c.oracle.IsOnline(ctx)
	if online {
		c.scheduledDrain(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sync scheduler stopped")
			return nil
		case <-drainTicker.C:
			c.scheduledDrain(ctx)
		case <-pingTicker.C:
			if r, ok := c.oracle.(refresher); ok {
				r.Invalidate()
			}
			now := c.oracle.IsOnline(ctx)
			if now && !online {
				c.logger.Info("connectivity restored, draining queue")
				c.scheduledDrain(ctx)
			}
			online = now
		}
	}
}

func (c *coordinator) scheduledDrain(ctx context.Context) {
	// Storage failures are already logged and kept in Status.
	_, _ = c.Drain(ctx)
}
