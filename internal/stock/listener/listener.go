package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/auth"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/stock"
	"github.com/fekuna/omnipos-offline-sync/internal/stock/dto"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventInvoiceIssued = "InvoiceIssued"

type InvoiceIssuedPayload struct {
	InvoiceID string               `json:"invoice_id"`
	Actor     string               `json:"actor"`
	Items     []InvoiceItemPayload `json:"items"`
}

type InvoiceItemPayload struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// MessageReader is the part of *kafka.Reader the listener needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// Deduper remembers processed keys across redeliveries.
type Deduper interface {
	// FirstSeen records key and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

const (
	keyDedup = "dedup:%s:%s"
	ttlDedup = 48 * time.Hour
)

type RedisDeduper struct {
	client  redis.UniversalClient
	service string
}

func NewRedisDeduper(client redis.UniversalClient, service string) *RedisDeduper {
	return &RedisDeduper{client: client, service: service}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, fmt.Sprintf(keyDedup, d.service, key), time.Now().UTC().Unix(), ttlDedup).Result()
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, fmt.Sprintf(keyDedup, d.service, key)).Err()
}

// SalesListener turns issued invoices into outbound "venta" movements.
type SalesListener struct {
	reader MessageReader
	uc     stock.UseCase
	dedup  Deduper
	logger logger.ZapLogger

	retryDelay time.Duration
}

// NewSalesListener accepts a nil dedup; delivery is then at-least-once.
func NewSalesListener(reader MessageReader, uc stock.UseCase, dedup Deduper, log logger.ZapLogger) *SalesListener {
	return &SalesListener{
		reader: reader,
		uc:     uc,
		dedup:  dedup,
		logger: log,

		retryDelay: time.Second,
	}
}

func (l *SalesListener) Start(ctx context.Context) error {
	l.logger.Info("Starting sales listener")
	defer l.reader.Close()

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Stopping sales listener")
				return nil
			}
			l.logger.Error("Failed to read kafka message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		// Committing a later offset would skip this one, so retry in place.
		for {
			err := l.processMessage(ctx, msg.Value)
			if err == nil {
				break
			}
			l.logger.Error("Failed to process sales event, retrying",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.retryDelay):
			}
		}
		if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			l.logger.Error("Failed to commit kafka message", zap.Error(err))
		}
	}
}

// processMessage returns an error only for local storage failures. Bad
// events are logged and dropped.
func (l *SalesListener) processMessage(ctx context.Context, value []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil
	}
	if env.EventType != EventInvoiceIssued {
		return nil
	}

	var payload InvoiceIssuedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		l.logger.Error("Failed to unmarshal invoice payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	l.logger.Info("Processing InvoiceIssued event",
		zap.String("event_id", env.EventID),
		zap.String("invoice_id", payload.InvoiceID),
	)

	actor := payload.Actor
	if actor == "" {
		actor = auth.DefaultActor
	}

	for i, item := range payload.Items {
		key := fmt.Sprintf("%s:%d", env.EventID, i)
		if l.dedup != nil && env.EventID != "" {
			first, err := l.dedup.FirstSeen(ctx, key)
			if err != nil {
				l.logger.Warn("dedup lookup failed, processing anyway", zap.String("key", key), zap.Error(err))
			} else if !first {
				continue
			}
		}

		if err := l.applyItem(ctx, item, actor); err != nil {
			if l.dedup != nil && env.EventID != "" {
				if ferr := l.dedup.Forget(ctx, key); ferr != nil {
					l.logger.Warn("failed to clear dedup key", zap.String("key", key), zap.Error(ferr))
				}
			}
			return err
		}
	}
	return nil
}

func (l *SalesListener) applyItem(ctx context.Context, item InvoiceItemPayload, actor string) error {
	amount, err := stock.AmountFromFloat(item.Quantity)
	if err == nil {
		_, err = l.uc.AdjustStock(ctx, &dto.AdjustStockInput{
			ProductID: item.ProductID,
			Amount:    amount,
			Reason:    stock.ReasonSale,
			Actor:     actor,
		})
	}
	if err == nil {
		return nil
	}

	switch apperror.KindOf(err) {
	case apperror.KindNotFound, apperror.KindInvalidArgument:
		l.logger.Error("Skipping invoice line",
			zap.Int64("product_id", item.ProductID),
			zap.Float64("quantity", item.Quantity),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}
