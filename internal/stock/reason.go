package stock

import (
	"strings"

	"github.com/fekuna/omnipos-offline-sync/internal/apperror"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/shopspring/decimal"
)

const (
	ReasonInitial        = "inicial"
	ReasonManualInbound  = "ingreso_manual"
	ReasonPositiveAdjust = "ajuste_positivo"
	ReasonReturn         = "devolucion"
	ReasonManualOutbound = "egreso_manual"
	ReasonSale           = "venta"
	ReasonNegativeAdjust = "ajuste_negativo"
)

var inboundReasons = map[string]bool{
	ReasonInitial:         true,
	ReasonManualInbound:   true,
	ReasonPositiveAdjust:  true,
	ReasonReturn:          true,
	"initial":             true,
	"manual_inbound":      true,
	"positive_correction": true,
	"return":              true,
}

// Classify normalises a reason code and derives the movement direction.
// Codes it does not know decrease stock.
func Classify(reason string) (model.MovementKind, string, error) {
	code := strings.ToLower(strings.TrimSpace(reason))
	if code == "" {
		return "", "", apperror.Invalid("stock.Classify", "reason is required")
	}
	if inboundReasons[code] {
		return model.MovementInbound, code, nil
	}
	return model.MovementOutbound, code, nil
}

// ParseAmount accepts a whole, non-negative quantity in any numeric
// spelling ("3", "3.0", "3e0").
func ParseAmount(raw string) (int64, error) {
	const op = "stock.ParseAmount"

	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperror.Invalid(op, "amount %q is not numeric", raw)
	}
	return amountFromDecimal(op, d)
}

// AmountFromFloat is ParseAmount for decoded JSON floats.
func AmountFromFloat(f float64) (int64, error) {
	return amountFromDecimal("stock.AmountFromFloat", decimal.NewFromFloat(f))
}

func amountFromDecimal(op string, d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, apperror.Invalid(op, "amount %s is negative", d.String())
	}
	if !d.IsInteger() {
		return 0, apperror.Invalid(op, "amount %s is not a whole quantity", d.String())
	}
	if d.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, apperror.Invalid(op, "amount %s is too large", d.String())
	}
	return d.IntPart(), nil
}

// maxAmount keeps quantity arithmetic far from int64 overflow.
const maxAmount = 1 << 40
