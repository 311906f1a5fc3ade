package dto

import (
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/model"
)

type AdjustStockInput struct {
	ProductID int64
	// Amount is a magnitude; the reason carries the direction.
	Amount int64
	Reason string
	Actor  string

	// Exclusive is set by callers that already run inside a transaction and
	// hold the product exclusively: they hold its lock or the row is not yet
	// committed. The lock is not taken again and Queue replaces the
	// connectivity check.
	Exclusive bool
	Queue     bool
}

type MovementFilters struct {
	ProductID int64
	Kind      model.MovementKind
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
