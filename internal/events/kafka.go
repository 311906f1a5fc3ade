package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

// MessageWriter is the part of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string, log logger.ZapLogger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to publish stock events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

// KafkaForwarder republishes every bus event on a kafka topic. It subscribes
// on construction, so events published before Run starts are buffered.
type KafkaForwarder struct {
	writer      MessageWriter
	events      <-chan Event
	unsubscribe func()
	producer    string
	logger      logger.ZapLogger
}

const forwarderBuffer = 1024

func NewKafkaForwarder(writer MessageWriter, bus *Bus, producer string, log logger.ZapLogger) *KafkaForwarder {
	ch, unsubscribe := bus.Subscribe(forwarderBuffer)
	return &KafkaForwarder{
		writer:      writer,
		events:      ch,
		unsubscribe: unsubscribe,
		producer:    producer,
		logger:      log,
	}
}

func (f *KafkaForwarder) Run(ctx context.Context) error {
	ch := f.events
	defer f.unsubscribe()
	defer f.writer.Close()

	f.logger.Info("Starting stock event forwarder", zap.String("producer", f.producer))
	for {
		select {
		case <-ctx.Done():
			// Flush what is already buffered before the writer closes.
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					f.forward(context.Background(), ev)
				default:
					f.logger.Info("Stopping stock event forwarder")
					return nil
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			f.forward(ctx, ev)
		}
	}
}

func (f *KafkaForwarder) forward(ctx context.Context, ev Event) {
	msg, err := f.encode(ev)
	if err != nil {
		f.logger.Error("failed to encode event", zap.String("event_type", ev.EventType()), zap.Error(err))
		return
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error("failed to write event", zap.String("event_type", ev.EventType()), zap.Error(err))
	}
}

func (f *KafkaForwarder) encode(ev Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	occurred := ev.When()
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	env := Envelope{
		EventID:      uuid.NewString(),
		EventType:    ev.EventType(),
		EventVersion: 1,
		OccurredAt:   occurred,
		Producer:     f.producer,
		Payload:      payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.Key()),
		Value: value,
		Time:  occurred,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType())},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}, nil
}
