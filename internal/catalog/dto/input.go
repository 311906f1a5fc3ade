package dto

import "github.com/shopspring/decimal"

type CreateProductInput struct {
	Code        string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Cost        decimal.Decimal
	TaxRate     *decimal.Decimal
	MinQuantity *int64
	// InitialStock is booked through the stock ledger as an "inicial"
	// movement once the product exists.
	InitialStock int64
	Actor        string
}

type UpdateProductInput struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Cost        decimal.Decimal
	TaxRate     decimal.Decimal
	MinQuantity int64
	IsActive    bool

	// Quantity, when set, is a stock target. The difference is booked as a
	// manual inbound or outbound movement.
	Quantity *int64
	Actor    string
}
