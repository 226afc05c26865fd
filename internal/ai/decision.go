package ai

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trading signals an AI decision may carry
const (
	SignalBuyToEnter  = "buy_to_enter"
	SignalSellToEnter = "sell_to_enter"
	SignalClose       = "close_position"
	SignalHold        = "hold"
)

// Decision is one proposed action for one coin. Quantity and prices are
// decimal strings on the wire and parsed before validation.
type Decision struct {
	Coin          string           `json:"coin"`
	Signal        string           `json:"signal"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Leverage      int              `json:"leverage"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	Confidence    float64          `json:"confidence"`
	Justification string           `json:"justification"`
}

// IsOpener reports whether the decision opens or adds to exposure
func (d *Decision) IsOpener() bool {
	return d.Signal == SignalBuyToEnter || d.Signal == SignalSellToEnter
}

// IsActionable reports whether the decision requires any processing at all
func (d *Decision) IsActionable() bool {
	return d.Signal != SignalHold && d.Signal != ""
}

// Validate checks structural validity before the decision reaches risk
// evaluation
func (d *Decision) Validate() error {
	switch d.Signal {
	case SignalBuyToEnter, SignalSellToEnter, SignalClose, SignalHold:
	default:
		return fmt.Errorf("unknown signal %q", d.Signal)
	}
	if d.Signal == SignalHold {
		return nil
	}
	if d.Quantity.IsNegative() || d.Quantity.IsZero() {
		return fmt.Errorf("quantity must be positive, got %s", d.Quantity)
	}
	if d.IsOpener() && (d.EntryPrice.IsNegative() || d.EntryPrice.IsZero()) {
		return fmt.Errorf("entry price must be positive, got %s", d.EntryPrice)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0, 1], got %v", d.Confidence)
	}
	if d.Leverage < 0 {
		return fmt.Errorf("leverage must be non-negative, got %d", d.Leverage)
	}
	return nil
}
