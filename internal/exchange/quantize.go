package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantizeQuantity rounds a desired quantity down to the symbol's step size
// and validates the result against the minimum quantity and minimum notional
// filters. Rounding is always downward so a quantized order can never exceed
// what risk checks approved.
func QuantizeQuantity(filters *SymbolFilters, quantity, price decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsNegative() || quantity.IsZero() {
		return decimal.Zero, &APIError{Kind: KindSymbolFilter, Message: "quantity must be positive"}
	}

	quantized := quantity
	if filters.StepSize.IsPositive() {
		steps := quantity.Div(filters.StepSize).Floor()
		quantized = steps.Mul(filters.StepSize)
	}

	if filters.MinQty.IsPositive() && quantized.LessThan(filters.MinQty) {
		return decimal.Zero, &APIError{
			Kind:    KindSymbolFilter,
			Message: fmt.Sprintf("quantity %s below minimum %s for %s", quantized, filters.MinQty, filters.Coin),
		}
	}

	if filters.MinNotional.IsPositive() {
		notional := quantized.Mul(price)
		if notional.LessThan(filters.MinNotional) {
			return decimal.Zero, &APIError{
				Kind:    KindSymbolFilter,
				Message: fmt.Sprintf("notional %s below minimum %s for %s", notional, filters.MinNotional, filters.Coin),
			}
		}
	}

	return quantized, nil
}
