package dto

import "time"

type DrainReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Exhausted counts entries that reached the attempt limit in this pass.
	Exhausted  int       `json:"exhausted"`
	Offline    bool      `json:"offline"`
	InProgress bool      `json:"in_progress"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Status struct {
	Pending         int          `json:"pending"`
	Exhausted       int          `json:"exhausted"`
	OldestPendingAt *time.Time   `json:"oldest_pending_at,omitempty"`
	MaxAttempts     int          `json:"max_attempts"`
	Online          bool         `json:"online"`
	Processing      bool         `json:"processing"`
	LastDrainAt     *time.Time   `json:"last_drain_at,omitempty"`
	LastReport      *DrainReport `json:"last_report,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
}
