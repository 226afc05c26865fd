package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/market"
	"trading-orchestrator/internal/risk"

	"github.com/shopspring/decimal"
)

const recentTradeWindow = 10

// portfolioView bundles the risk-check state and the AI prompt state built
// from one consistent read of the store
type portfolioView struct {
	risk      *risk.Portfolio
	prompt    *ai.PortfolioState
	positions []*database.Position
	closes    []*database.Trade // newest first, up to 30
}

// buildPortfolio assembles the model's portfolio state under the cycle lock.
// Total value prices open positions at the snapshot. Start-of-day value is
// reconstructed as current total value minus today's realized pnl; peak value
// walks the realized equity curve.
func (e *Engine) buildPortfolio(ctx context.Context, model *database.Model, basket *market.Basket) (*portfolioView, error) {
	positions, err := e.store.ListPositions(ctx, model.ID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if err := e.checkStoredState(ctx, model, positions); err != nil {
		return nil, err
	}

	totalValue := model.Cash
	promptPositions := make([]ai.PositionState, 0, len(positions))
	for _, p := range positions {
		snapshot, ok := basket.Snapshots[p.Coin]
		if !ok {
			return nil, fmt.Errorf("no market snapshot for open position %s", p.Coin)
		}
		marketValue := p.Quantity.Mul(snapshot.Price)
		if p.Side == database.PositionShort {
			// Short exposure contributes entry value plus unrealized pnl
			entryValue := p.Quantity.Mul(p.AvgEntryPrice)
			totalValue = totalValue.Add(entryValue).Add(entryValue.Sub(marketValue))
		} else {
			totalValue = totalValue.Add(marketValue)
		}
		promptPositions = append(promptPositions, ai.PositionState{
			Coin:          p.Coin,
			Side:          p.Side,
			Quantity:      p.Quantity,
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentPrice:  snapshot.Price,
		})
	}

	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tradesToday, err := e.store.CountTradesSince(ctx, model.ID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("count trades today: %w", err)
	}
	todayPnL, err := e.store.SumRealizedPnLBetween(ctx, model.ID, dayStart, now)
	if err != nil {
		return nil, fmt.Errorf("today pnl: %w", err)
	}

	closes, err := e.store.ListClosingTrades(ctx, model.ID, 30)
	if err != nil {
		return nil, fmt.Errorf("closing trades: %w", err)
	}

	recent, err := e.store.ListTrades(ctx, model.ID, recentTradeWindow)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	promptTrades := make([]ai.TradeState, 0, len(recent))
	for _, t := range recent {
		promptTrades = append(promptTrades, ai.TradeState{
			Coin:        t.Coin,
			Side:        t.Side,
			Quantity:    t.Quantity,
			Price:       t.Price,
			RealizedPnL: t.RealizedPnL,
			Timestamp:   t.Timestamp,
		})
	}

	return &portfolioView{
		risk: &risk.Portfolio{
			Cash:             model.Cash,
			TotalValue:       totalValue,
			StartOfDayValue:  totalValue.Sub(todayPnL),
			PeakValue:        realizedPeak(model.InitialCapital, closes),
			Positions:        positions,
			TradesToday:      tradesToday,
			TodayRealizedPnL: todayPnL,
		},
		prompt: &ai.PortfolioState{
			Cash:         model.Cash,
			TotalValue:   totalValue,
			Positions:    promptPositions,
			RecentTrades: promptTrades,
		},
		positions: positions,
		closes:    closes,
	}, nil
}

// errInconsistentState marks a storage read that revealed corrupted
// bookkeeping. The model is paused until the operator intervenes.
var errInconsistentState = errors.New("inconsistent stored state")

// checkStoredState validates the positions read for a cycle. A non-positive
// quantity or entry price means the bookkeeping is corrupted: the model is
// paused with a critical incident and the cycle aborts.
func (e *Engine) checkStoredState(ctx context.Context, model *database.Model, positions []*database.Position) error {
	for _, p := range positions {
		if p.Quantity.IsPositive() && p.AvgEntryPrice.IsPositive() {
			continue
		}

		inc := &database.Incident{
			ModelID:  &model.ID,
			Type:     database.IncidentExecutionError,
			Severity: database.SeverityCritical,
			Message:  fmt.Sprintf("inconsistent position state for %s %s, model paused", p.Coin, p.Side),
			Details: map[string]any{
				"coin":            p.Coin,
				"side":            p.Side,
				"quantity":        p.Quantity.String(),
				"avg_entry_price": p.AvgEntryPrice.String(),
			},
			Timestamp: e.now().UTC(),
		}
		if err := e.store.CreateIncident(ctx, inc); err != nil {
			e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("failed to write inconsistent-state incident")
		}
		if err := e.store.UpdateModelStatus(ctx, model.ID, database.ModelStatusPaused); err != nil {
			e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("failed to pause model over inconsistent state")
		}
		e.logger.Error().
			Int64("model_id", model.ID).
			Str("coin", p.Coin).
			Str("side", p.Side).
			Str("quantity", p.Quantity.String()).
			Msg("stored position state is inconsistent, model paused")

		return fmt.Errorf("%w: position %s %s quantity %s entry %s",
			errInconsistentState, p.Coin, p.Side, p.Quantity, p.AvgEntryPrice)
	}
	return nil
}

// realizedPeak walks the realized equity curve oldest-first and returns the
// highest equity reached
func realizedPeak(initialCapital decimal.Decimal, closesNewestFirst []*database.Trade) decimal.Decimal {
	equity := initialCapital
	peak := initialCapital
	for i := len(closesNewestFirst) - 1; i >= 0; i-- {
		equity = equity.Add(closesNewestFirst[i].RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
	}
	return peak
}

// findPosition returns the open position for a coin, preferring long when
// both sides somehow exist
func findPosition(positions []*database.Position, coin string) *database.Position {
	var short *database.Position
	for _, p := range positions {
		if p.Coin != coin {
			continue
		}
		if p.Side == database.PositionLong {
			return p
		}
		short = p
	}
	return short
}
