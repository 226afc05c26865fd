package engine

import (
	"context"
	"fmt"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
)

// ExecuteApproved runs an operator-approved pending decision. Market state
// has moved since the proposal was queued, so risk is re-evaluated against
// fresh prices before execution; a re-check denial fails the execution
// without touching positions.
func (e *Engine) ExecuteApproved(ctx context.Context, pd *database.PendingDecision) (*ExecutionResult, error) {
	mu := e.modelLock(pd.ModelID)
	mu.Lock()
	defer mu.Unlock()

	model, err := e.store.GetModel(ctx, pd.ModelID)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", pd.ModelID, err)
	}
	settings, err := e.store.GetSettings(ctx, pd.ModelID)
	if err != nil {
		return nil, fmt.Errorf("settings for model %d: %w", pd.ModelID, err)
	}

	basket, err := e.data.GetBasket(ctx)
	if err != nil {
		return nil, fmt.Errorf("market basket: %w", err)
	}
	view, err := e.buildPortfolio(ctx, model, basket)
	if err != nil {
		return nil, err
	}

	decision := decisionFromPending(pd)
	if snapshot, ok := basket.Snapshots[decision.Coin]; ok {
		decision.EntryPrice = snapshot.Price
	}

	if decision.Signal == ai.SignalClose && findPosition(view.positions, decision.Coin) == nil {
		return &ExecutionResult{Status: StatusFailed, Reason: "no open position"}, nil
	}

	verdict := e.riskMgr.Evaluate(decision, view.risk, settings, false)
	if !verdict.Allowed {
		e.recordRejection(ctx, model.ID, decision, verdict.Reason, verdict.Severity)
		return &ExecutionResult{Status: StatusFailed, Reason: verdict.Reason}, nil
	}

	executor := e.simulation
	if model.Environment == database.EnvLive {
		executor = e.live
	}
	result, err := executor.Execute(ctx, model, settings, decision, basket, view.positions)
	if err != nil {
		return nil, err
	}
	if result.Status == StatusFailed {
		return result, nil
	}

	if err := e.profiles.RecordTrade(ctx, model.ID, result.RealizedPnL, currentDrawdownPct(view.risk)); err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("failed to record session trade")
	}
	e.bus.PublishTradeExecuted(model.ID, decision.Coin, result.Trade.Side,
		result.Trade.Quantity.String(), result.Trade.Price.String(), result.Status)

	return result, nil
}

// decisionFromPending rebuilds the decision, honoring operator modifications
// to quantity and leverage
func decisionFromPending(pd *database.PendingDecision) *ai.Decision {
	d := &ai.Decision{
		Coin:          pd.Coin,
		Signal:        pd.Signal,
		Quantity:      pd.Quantity,
		Leverage:      pd.Leverage,
		EntryPrice:    pd.EntryPrice,
		StopLoss:      pd.StopLoss,
		TakeProfit:    pd.TakeProfit,
		Confidence:    pd.Confidence,
		Justification: pd.Justification,
	}
	if pd.ResolvedQuantity != nil {
		d.Quantity = *pd.ResolvedQuantity
	}
	if pd.ResolvedLeverage != nil {
		d.Leverage = *pd.ResolvedLeverage
	}
	return d
}
