package model

import (
	"encoding/json"
	"time"
)

const TableSyncQueue = "sync_queue"

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncEntry is one queued remote mutation. The id defines replay order.
type SyncEntry struct {
	ID             int64      `db:"id" json:"id"`
	Operation      Operation  `db:"operation" json:"operation"`
	TableName      string     `db:"table_name" json:"table_name"`
	RecordKey      string     `db:"record_key" json:"record_key"`
	Payload        string     `db:"payload" json:"-"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	Attempts       int        `db:"attempts" json:"attempts"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	EnqueuedAt     time.Time  `db:"enqueued_at" json:"enqueued_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	ExhaustedAt    *time.Time `db:"exhausted_at" json:"exhausted_at,omitempty"`
}

func (e *SyncEntry) RawPayload() json.RawMessage {
	if e.Payload == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(e.Payload)
}

func (e *SyncEntry) Exhausted() bool {
	return e.ExhaustedAt != nil
}

// MarshalJSON embeds the payload as JSON instead of an escaped string.
func (e SyncEntry) MarshalJSON() ([]byte, error) {
	type alias SyncEntry
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias: alias(e), Payload: e.RawPayload()})
}
