package dto

import "encoding/json"

type EnqueueRequest struct {
	Operation string          `json:"operation"`
	Table     string          `json:"table"`
	RecordKey string          `json:"record_key"`
	Payload   json.RawMessage `json:"payload"`
}
