package engine

import (
	"context"
	"errors"
	"fmt"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/exchange"
	"trading-orchestrator/internal/market"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Execution result statuses
const (
	StatusSimulated = "simulated"
	StatusExecuted  = "executed"
	StatusFailed    = "failed"
)

// ExecutionResult reports what one executor run did
type ExecutionResult struct {
	Status      string
	Trade       *database.Trade
	RealizedPnL *decimal.Decimal
	Reason      string
}

// EnvironmentExecutor performs the position mutation for one approved
// decision. The simulation variant only writes the store; the live variant
// places a real order first.
type EnvironmentExecutor interface {
	Execute(ctx context.Context, model *database.Model, settings *database.ModelSettings, decision *ai.Decision, basket *market.Basket, positions []*database.Position) (*ExecutionResult, error)
}

// ClientProvider supplies per-model exchange clients. Implemented by
// *exchange.Factory.
type ClientProvider interface {
	ClientFor(ctx context.Context, model *database.Model) (exchange.ExchangeClient, error)
}

// ============================================================================
// SIMULATION
// ============================================================================

// SimulationExecutor fills at the snapshot price with the configured fee
// rate. No external calls.
type SimulationExecutor struct {
	store  Store
	logger zerolog.Logger
}

var _ EnvironmentExecutor = (*SimulationExecutor)(nil)

// NewSimulationExecutor creates the simulation executor
func NewSimulationExecutor(store Store, logger zerolog.Logger) *SimulationExecutor {
	return &SimulationExecutor{store: store, logger: logger}
}

// Execute simulates an immediate full fill at the current market price
func (s *SimulationExecutor) Execute(ctx context.Context, model *database.Model, settings *database.ModelSettings, decision *ai.Decision, basket *market.Basket, positions []*database.Position) (*ExecutionResult, error) {
	snapshot, ok := basket.Snapshots[decision.Coin]
	if !ok {
		return nil, fmt.Errorf("no market snapshot for %s", decision.Coin)
	}

	price := snapshot.Price
	quantity := decision.Quantity
	fee := quantity.Mul(price).Mul(settings.FeeRate)

	rec, realized, err := composeExecution(model, decision, positions, fill{
		price:    price,
		quantity: quantity,
		fee:      fee,
		at:       basket.FetchedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.ApplyExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("apply execution: %w", err)
	}

	s.logger.Info().
		Int64("model_id", model.ID).
		Str("coin", decision.Coin).
		Str("signal", decision.Signal).
		Str("price", price.String()).
		Str("quantity", quantity.String()).
		Msg("simulated fill")

	return &ExecutionResult{Status: StatusSimulated, Trade: rec.Trade, RealizedPnL: realized}, nil
}

// ============================================================================
// LIVE
// ============================================================================

// LiveExecutor places market orders on the exchange and books the reported
// fill. It never retries; the next cycle re-evaluates.
type LiveExecutor struct {
	store   Store
	clients ClientProvider
	logger  zerolog.Logger
}

var _ EnvironmentExecutor = (*LiveExecutor)(nil)

// NewLiveExecutor creates the live executor
func NewLiveExecutor(store Store, clients ClientProvider, logger zerolog.Logger) *LiveExecutor {
	return &LiveExecutor{store: store, clients: clients, logger: logger}
}

// Execute quantizes the order per the symbol's filters, places it, and books
// the exchange-reported fill. Exchange failures write an incident and leave
// positions untouched.
func (l *LiveExecutor) Execute(ctx context.Context, model *database.Model, settings *database.ModelSettings, decision *ai.Decision, basket *market.Basket, positions []*database.Position) (*ExecutionResult, error) {
	snapshot, ok := basket.Snapshots[decision.Coin]
	if !ok {
		return nil, fmt.Errorf("no market snapshot for %s", decision.Coin)
	}

	client, err := l.clients.ClientFor(ctx, model)
	if err != nil {
		return l.failed(ctx, model, decision, err)
	}

	filters, err := client.GetSymbolFilters(ctx, decision.Coin)
	if err != nil {
		return l.failed(ctx, model, decision, err)
	}
	quantity, err := exchange.QuantizeQuantity(filters, executableQuantity(decision, positions), snapshot.Price)
	if err != nil {
		return l.failed(ctx, model, decision, err)
	}

	result, err := client.PlaceMarketOrder(ctx, exchange.OrderRequest{
		Coin:     decision.Coin,
		Side:     orderSide(decision, positions),
		Quantity: quantity,
	})
	if err != nil {
		return l.failed(ctx, model, decision, err)
	}

	fee := result.Commission
	if fee.IsZero() {
		fee = result.ExecutedQty.Mul(result.AvgFillPrice).Mul(settings.FeeRate)
	}

	rec, realized, err := composeExecution(model, decision, positions, fill{
		price:    result.AvgFillPrice,
		quantity: result.ExecutedQty,
		fee:      fee,
		orderID:  &result.OrderID,
		at:       result.TransactTime,
	})
	if err != nil {
		return nil, err
	}

	if err := l.store.ApplyExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("apply execution: %w", err)
	}

	l.logger.Info().
		Int64("model_id", model.ID).
		Str("coin", decision.Coin).
		Str("order_id", result.OrderID).
		Str("price", result.AvgFillPrice.String()).
		Str("quantity", result.ExecutedQty.String()).
		Msg("live fill booked")

	return &ExecutionResult{Status: StatusExecuted, Trade: rec.Trade, RealizedPnL: realized}, nil
}

// failed records the exchange failure as an incident and returns a failed
// result without mutating positions
func (l *LiveExecutor) failed(ctx context.Context, model *database.Model, decision *ai.Decision, cause error) (*ExecutionResult, error) {
	severity := database.SeverityHigh
	reason := cause.Error()
	if exchange.IsKind(cause, exchange.KindNetwork) {
		severity = database.SeverityCritical
		reason = "TIMEOUT"
	}

	details := map[string]any{"coin": decision.Coin, "signal": decision.Signal, "error": cause.Error()}
	var apiErr *exchange.APIError
	if errors.As(cause, &apiErr) {
		details["kind"] = apiErr.Kind
		details["code"] = apiErr.Code
	}

	inc := &database.Incident{
		ModelID:   &model.ID,
		Type:      database.IncidentExecutionError,
		Severity:  severity,
		Message:   fmt.Sprintf("live execution failed for %s: %s", decision.Coin, cause),
		Details:   details,
		Timestamp: timeNow(),
	}
	if err := l.store.CreateIncident(ctx, inc); err != nil {
		l.logger.Error().Err(err).Msg("failed to write execution incident")
	}

	return &ExecutionResult{Status: StatusFailed, Reason: reason}, nil
}

// executableQuantity caps a close at the open position's quantity
func executableQuantity(decision *ai.Decision, positions []*database.Position) decimal.Decimal {
	if decision.Signal != ai.SignalClose {
		return decision.Quantity
	}
	if p := findPosition(positions, decision.Coin); p != nil && decision.Quantity.GreaterThan(p.Quantity) {
		return p.Quantity
	}
	return decision.Quantity
}

// orderSide maps a decision to the exchange order side. Closing a short buys
// back; everything else follows the signal direction.
func orderSide(decision *ai.Decision, positions []*database.Position) string {
	switch decision.Signal {
	case ai.SignalBuyToEnter:
		return exchange.SideBuy
	case ai.SignalSellToEnter:
		return exchange.SideSell
	case ai.SignalClose:
		if p := findPosition(positions, decision.Coin); p != nil && p.Side == database.PositionShort {
			return exchange.SideBuy
		}
		return exchange.SideSell
	}
	return exchange.SideBuy
}
