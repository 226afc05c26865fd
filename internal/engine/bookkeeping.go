package engine

import (
	"fmt"
	"time"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"

	"github.com/shopspring/decimal"
)

// fill is the executor-agnostic description of a completed order
type fill struct {
	price    decimal.Decimal
	quantity decimal.Decimal
	fee      decimal.Decimal
	orderID  *string
	at       time.Time
}

// composeExecution turns a fill into the atomic bookkeeping record: trade
// row, position delta, and new cash. Returns the realized pnl for closes,
// nil for opens.
func composeExecution(model *database.Model, decision *ai.Decision, positions []*database.Position, f fill) (*database.ExecutionRecord, *decimal.Decimal, error) {
	switch decision.Signal {
	case ai.SignalBuyToEnter:
		return composeOpen(model, decision, positions, f, database.PositionLong)
	case ai.SignalSellToEnter:
		return composeOpen(model, decision, positions, f, database.PositionShort)
	case ai.SignalClose:
		return composeClose(model, decision, positions, f)
	default:
		return nil, nil, fmt.Errorf("signal %q is not executable", decision.Signal)
	}
}

func composeOpen(model *database.Model, decision *ai.Decision, positions []*database.Position, f fill, side string) (*database.ExecutionRecord, *decimal.Decimal, error) {
	// An opener against an open opposite-side position books as a close of
	// that exposure; a long and a short on the same coin never coexist. The
	// new side can open on a later cycle once the book is flat.
	opposite := database.PositionShort
	if side == database.PositionShort {
		opposite = database.PositionLong
	}
	for _, p := range positions {
		if p.Coin == decision.Coin && p.Side == opposite {
			return composeClose(model, decision, positions, f)
		}
	}

	notional := f.quantity.Mul(f.price)

	var newCash decimal.Decimal
	var tradeSide string
	if side == database.PositionLong {
		tradeSide = database.TradeSideBuy
		newCash = model.Cash.Sub(notional).Sub(f.fee)
	} else {
		tradeSide = database.TradeSideSell
		newCash = model.Cash.Add(notional).Sub(f.fee)
	}
	if newCash.IsNegative() {
		return nil, nil, fmt.Errorf("fill would drive cash negative (%s)", newCash)
	}

	position := &database.Position{
		ModelID:       model.ID,
		Coin:          decision.Coin,
		Side:          side,
		Quantity:      f.quantity,
		AvgEntryPrice: f.price,
		StopLoss:      decision.StopLoss,
		TakeProfit:    decision.TakeProfit,
	}

	// Adding to an existing same-side position re-weights the entry price
	for _, p := range positions {
		if p.Coin == decision.Coin && p.Side == side {
			combined := p.Quantity.Add(f.quantity)
			weighted := p.Quantity.Mul(p.AvgEntryPrice).Add(notional).Div(combined)
			position.Quantity = combined
			position.AvgEntryPrice = weighted
			break
		}
	}

	rec := &database.ExecutionRecord{
		Trade: &database.Trade{
			ModelID:         model.ID,
			Coin:            decision.Coin,
			Side:            tradeSide,
			Quantity:        f.quantity,
			Price:           f.price,
			Fee:             f.fee,
			RealizedPnL:     decimal.Zero,
			ExchangeOrderID: f.orderID,
			Timestamp:       f.at,
		},
		Position: position,
		NewCash:  newCash,
	}
	return rec, nil, nil
}

func composeClose(model *database.Model, decision *ai.Decision, positions []*database.Position, f fill) (*database.ExecutionRecord, *decimal.Decimal, error) {
	position := findPosition(positions, decision.Coin)
	if position == nil {
		return nil, nil, fmt.Errorf("no open position for %s", decision.Coin)
	}

	quantity := f.quantity
	if quantity.GreaterThan(position.Quantity) {
		quantity = position.Quantity
	}
	notional := quantity.Mul(f.price)

	var realized, newCash decimal.Decimal
	if position.Side == database.PositionLong {
		realized = quantity.Mul(f.price.Sub(position.AvgEntryPrice)).Sub(f.fee)
		newCash = model.Cash.Add(notional).Sub(f.fee)
	} else {
		realized = quantity.Mul(position.AvgEntryPrice.Sub(f.price)).Sub(f.fee)
		newCash = model.Cash.Sub(notional).Sub(f.fee)
	}
	if newCash.IsNegative() {
		return nil, nil, fmt.Errorf("close would drive cash negative (%s)", newCash)
	}

	rec := &database.ExecutionRecord{
		Trade: &database.Trade{
			ModelID:         model.ID,
			Coin:            decision.Coin,
			Side:            database.TradeSideClose,
			Quantity:        quantity,
			Price:           f.price,
			Fee:             f.fee,
			RealizedPnL:     realized,
			ExchangeOrderID: f.orderID,
			Timestamp:       f.at,
		},
		NewCash: newCash,
	}

	remaining := position.Quantity.Sub(quantity)
	if remaining.IsPositive() {
		rec.Position = &database.Position{
			ModelID:       model.ID,
			Coin:          position.Coin,
			Side:          position.Side,
			Quantity:      remaining,
			AvgEntryPrice: position.AvgEntryPrice,
			StopLoss:      position.StopLoss,
			TakeProfit:    position.TakeProfit,
		}
	} else {
		rec.RemoveCoin = position.Coin
		rec.RemoveSide = position.Side
	}
	return rec, &realized, nil
}
