package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	errInvalidJSON   = errors.New("malformed document")
)

type syncQueueUseCase struct {
	repo      syncqueue.Repository
	publisher events.Publisher
	logger    logger.ZapLogger
}

func NewSyncQueueUseCase(repo syncqueue.Repository, publisher events.Publisher, log logger.ZapLogger) syncqueue.UseCase {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &syncQueueUseCase{
		repo:      repo,
		publisher: publisher,
		logger:    log,
	}
}

func (uc *syncQueueUseCase) Enqueue(ctx context.Context, input *dto.EnqueueInput) (*model.SyncEntry, error) {
	const op = "syncqueue.Enqueue"

	operation := model.Operation(strings.ToLower(strings.TrimSpace(input.Operation)))
	if !operation.Valid() {
		return nil, apperror.Invalid(op, "unknown operation %q", input.Operation)
	}
	if !tableNamePattern.MatchString(input.Table) {
		return nil, apperror.Invalid(op, "invalid table name %q", input.Table)
	}

	payload, err := encodePayload(input.Payload)
	if err != nil {
		return nil, apperror.Invalid(op, "payload is not valid JSON: %v", err)
	}

	key := strings.TrimSpace(input.RecordKey)
	if key == "" {
		key = recordKeyOf(payload)
	}
	if key == "" && operation != model.OpInsert {
		return nil, apperror.Invalid(op, "%s on %s needs a record key", operation, input.Table)
	}

	now := time.Now().UTC()
	entry := &model.SyncEntry{
		Operation:      operation,
		TableName:      input.Table,
		RecordKey:      key,
		Payload:        string(payload),
		IdempotencyKey: uuid.New().String(),
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}

	if err := uc.repo.Insert(ctx, entry); err != nil {
		uc.logger.Error("failed to enqueue change",
			zap.String("operation", string(operation)),
			zap.String("table", input.Table),
			zap.Error(err),
		)
		return nil, err
	}

	uc.logger.Debug("change enqueued",
		zap.Int64("entry_id", entry.ID),
		zap.String("operation", string(operation)),
		zap.String("table", entry.TableName),
		zap.String("record_key", entry.RecordKey),
	)

	ev := events.ChangeEnqueued{
		EntryID:    entry.ID,
		Operation:  string(entry.Operation),
		Table:      entry.TableName,
		RecordKey:  entry.RecordKey,
		OccurredAt: now,
	}
	sqlite.AfterCommit(ctx, func() { uc.publisher.Publish(ev) })

	return entry, nil
}

func (uc *syncQueueUseCase) ListPending(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error) {
	return uc.repo.ListPending(ctx, maxAttempts)
}

func (uc *syncQueueUseCase) RecordAttemptFailure(ctx context.Context, id int64, cause string) (*model.SyncEntry, error) {
	return uc.repo.IncrementAttempts(ctx, id, cause, time.Now().UTC())
}

func (uc *syncQueueUseCase) MarkExhausted(ctx context.Context, id int64) error {
	return uc.repo.MarkExhausted(ctx, id, time.Now().UTC())
}

func (uc *syncQueueUseCase) Remove(ctx context.Context, id int64) error {
	return uc.repo.Delete(ctx, id)
}

func (uc *syncQueueUseCase) Stats(ctx context.Context, maxAttempts int) (*dto.Stats, error) {
	return uc.repo.Stats(ctx, maxAttempts)
}

func (uc *syncQueueUseCase) ListExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error) {
	return uc.repo.ListExhausted(ctx, maxAttempts)
}

func (uc *syncQueueUseCase) SweepExhausted(ctx context.Context, maxAttempts int) ([]model.SyncEntry, error) {
	return uc.repo.MarkOverdue(ctx, maxAttempts, time.Now().UTC())
}

func encodePayload(v interface{}) ([]byte, error) {
	var raw []byte
	switch p := v.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return raw, nil
}

// recordKeyOf reads the "id" field of an object payload. Strings are used
// as-is, numbers in their JSON spelling.
func recordKeyOf(payload []byte) string {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || len(head.ID) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(head.ID, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(head.ID))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
