package dto

import "time"

type Stats struct {
	Pending         int        `json:"pending"`
	Exhausted       int        `json:"exhausted"`
	OldestPendingAt *time.Time `json:"oldest_pending_at,omitempty"`
}
