// Package events carries typed domain events from the core to whoever
// subscribes (UI notifications, the kafka forwarder).
package events

import (
	"strconv"
	"time"
)

const (
	TypeStockAdjusted  = "StockAdjusted"
	TypeChangeEnqueued = "ChangeEnqueued"
	TypeQueueDrained   = "QueueDrained"
	TypeEntryExhausted = "EntryExhausted"
)

type Event interface {
	EventType() string
	// Key groups related events, e.g. for kafka partitioning.
	Key() string
	When() time.Time
}

type StockAdjusted struct {
	ProductID        int64     `json:"product_id"`
	MovementID       int64     `json:"movement_id"`
	Kind             string    `json:"kind"`
	Reason           string    `json:"reason"`
	Amount           int64     `json:"amount"`
	PreviousQuantity int64     `json:"previous_quantity"`
	NewQuantity      int64     `json:"new_quantity"`
	Clamped          bool      `json:"clamped"`
	LowStock         bool      `json:"low_stock"`
	Actor            string    `json:"actor"`
	Queued           bool      `json:"queued"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func (e StockAdjusted) EventType() string { return TypeStockAdjusted }
func (e StockAdjusted) Key() string       { return "product:" + strconv.FormatInt(e.ProductID, 10) }
func (e StockAdjusted) When() time.Time   { return e.OccurredAt }

type ChangeEnqueued struct {
	EntryID    int64     `json:"entry_id"`
	Operation  string    `json:"operation"`
	Table      string    `json:"table"`
	RecordKey  string    `json:"record_key"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e ChangeEnqueued) EventType() string { return TypeChangeEnqueued }
func (e ChangeEnqueued) Key() string       { return e.Table + ":" + e.RecordKey }
func (e ChangeEnqueued) When() time.Time   { return e.OccurredAt }

type QueueDrained struct {
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Exhausted  int       `json:"exhausted"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (e QueueDrained) EventType() string { return TypeQueueDrained }
func (e QueueDrained) Key() string       { return "sync_queue" }
func (e QueueDrained) When() time.Time   { return e.FinishedAt }

// EntryExhausted fires once, when an entry enters the dead-letter state.
type EntryExhausted struct {
	EntryID    int64     `json:"entry_id"`
	Operation  string    `json:"operation"`
	Table      string    `json:"table"`
	RecordKey  string    `json:"record_key"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e EntryExhausted) EventType() string { return TypeEntryExhausted }
func (e EntryExhausted) Key() string       { return e.Table + ":" + e.RecordKey }
func (e EntryExhausted) When() time.Time   { return e.OccurredAt }
