package dto

import "github.com/fekuna/omnipos-offline-sync/internal/model"

type AdjustStockResult struct {
	ProductID        int64              `json:"product_id"`
	PreviousQuantity int64              `json:"previous_quantity"`
	NewQuantity      int64              `json:"new_quantity"`
	MovementID       int64              `json:"movement_id"`
	Kind             model.MovementKind `json:"kind"`
	// Clamped is set when an outbound amount exceeded the stock on hand and
	// the quantity stopped at zero.
	Clamped  bool `json:"clamped"`
	LowStock bool `json:"low_stock"`
	Queued   bool `json:"queued"`
}
