package model

import "github.com/shopspring/decimal"

const TableProducts = "products"

// Product quantity is written only by the stock ledger.
type Product struct {
	BaseModel
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Category    string          `db:"category" json:"category"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Cost        decimal.Decimal `db:"cost" json:"cost"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	MinQuantity int64           `db:"min_quantity" json:"min_quantity"`
	IsActive    bool            `db:"is_active" json:"is_active"`
}

// IsLowStock reports whether an active product sits at or below its threshold.
func (p *Product) IsLowStock() bool {
	return p.IsActive && p.Quantity <= p.MinQuantity
}
