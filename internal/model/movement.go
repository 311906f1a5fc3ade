package model

import "time"

const TableStockMovements = "stock_movements"

type MovementKind string

const (
	MovementInbound  MovementKind = "inbound"
	MovementOutbound MovementKind = "outbound"
)

// StockMovement is append-only. QuantityAfter - QuantityBefore == Delta holds
// for every row, enforced by a CHECK constraint as well.
type StockMovement struct {
	ID             int64        `db:"id" json:"id"`
	ProductID      int64        `db:"product_id" json:"product_id"`
	Kind           MovementKind `db:"kind" json:"kind"`
	Reason         string       `db:"reason" json:"reason"`
	Amount         int64        `db:"amount" json:"amount"`
	Delta          int64        `db:"delta" json:"delta"`
	QuantityBefore int64        `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int64        `db:"quantity_after" json:"quantity_after"`
	Clamped        bool         `db:"clamped" json:"clamped"`
	Actor          string       `db:"actor" json:"actor"`
	SyncPending    bool         `db:"sync_pending" json:"sync_pending"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
