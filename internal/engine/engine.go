package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/events"
	"trading-orchestrator/internal/market"
	"trading-orchestrator/internal/profile"
	"trading-orchestrator/internal/risk"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultPendingTTL is how long a semi-auto proposal waits for the operator
const defaultPendingTTL = time.Hour

// Cycle action outcomes
const (
	OutcomeExecuted  = "executed"
	OutcomeSimulated = "simulated"
	OutcomePending   = "pending"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// MarketData is the market surface a cycle needs. Implemented by
// *market.Service.
type MarketData interface {
	GetBasket(ctx context.Context) (*market.Basket, error)
	Coins() []string
}

// CycleAction records what happened to one coin's decision
type CycleAction struct {
	Coin    string `json:"coin"`
	Signal  string `json:"signal"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// CycleReport summarizes one trading cycle for one model
type CycleReport struct {
	ID         string        `json:"id"`
	ModelID    int64         `json:"model_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Actions    []CycleAction `json:"actions"`
}

// Count returns how many actions ended with the given outcome
func (r *CycleReport) Count(outcome string) int {
	n := 0
	for _, a := range r.Actions {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}

// Engine runs trading cycles: market data in, AI decisions through risk
// checks, then execution per the model's environment and automation level.
// Cycles for the same model are serialized by a per-model lock.
type Engine struct {
	store      Store
	data       MarketData
	decider    ai.Decider
	riskMgr    *risk.Manager
	profiles   *profile.Engine
	simulation EnvironmentExecutor
	live       EnvironmentExecutor
	bus        *events.Bus
	logger     zerolog.Logger
	pendingTTL time.Duration

	locks sync.Map // model id -> *sync.Mutex
	now   func() time.Time
}

// New creates the trading engine
func New(store Store, data MarketData, decider ai.Decider, riskMgr *risk.Manager, profiles *profile.Engine, simulation, live EnvironmentExecutor, bus *events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		data:       data,
		decider:    decider,
		riskMgr:    riskMgr,
		profiles:   profiles,
		simulation: simulation,
		live:       live,
		bus:        bus,
		logger:     logger,
		pendingTTL: defaultPendingTTL,
		now:        time.Now,
	}
}

func (e *Engine) modelLock(modelID int64) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(modelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func timeNow() time.Time {
	return time.Now().UTC()
}

// RunCycle executes one full trading cycle for the model. Decisions are
// processed in alphabetical coin order; each execution refreshes the
// portfolio before the next coin is considered.
func (e *Engine) RunCycle(ctx context.Context, modelID int64) (*CycleReport, error) {
	mu := e.modelLock(modelID)
	mu.Lock()
	defer mu.Unlock()

	report := &CycleReport{ID: uuid.NewString(), ModelID: modelID, StartedAt: e.now().UTC()}
	defer func() {
		report.FinishedAt = e.now().UTC()
		e.publishCycleCompleted(report)
	}()

	model, err := e.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", modelID, err)
	}
	if model.Status != database.ModelStatusActive {
		report.Skipped = true
		report.SkipReason = "model paused"
		return report, nil
	}

	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("settings for model %d: %w", modelID, err)
	}

	basket, err := e.data.GetBasket(ctx)
	if err != nil {
		e.recordCycleFailure(ctx, modelID, "market_data", err)
		return nil, fmt.Errorf("market basket: %w", err)
	}

	view, err := e.buildPortfolio(ctx, model, basket)
	if err != nil {
		if !errors.Is(err, errInconsistentState) {
			e.recordCycleFailure(ctx, modelID, "portfolio", err)
		}
		return nil, err
	}

	decisions, err := e.decider.Decide(ctx, &ai.Request{
		Provider:    ai.Provider(model.Provider),
		Model:       model.AIModel,
		Temperature: settings.AITemperature,
		Coins:       e.data.Coins(),
		Basket:      basket,
		Portfolio:   view.prompt,
	})
	if err != nil {
		e.recordCycleFailure(ctx, modelID, "ai_decider", err)
		return nil, fmt.Errorf("decide: %w", err)
	}

	for _, coin := range ai.SortedCoins(decisions) {
		decision := decisions[coin]
		action := e.processDecision(ctx, model, settings, &decision, basket, view)
		report.Actions = append(report.Actions, action)

		// A fill changes cash and positions, so later coins in the same
		// cycle must see the refreshed state
		if action.Outcome == OutcomeExecuted || action.Outcome == OutcomeSimulated {
			model, err = e.store.GetModel(ctx, modelID)
			if err != nil {
				return report, fmt.Errorf("reload model %d: %w", modelID, err)
			}
			view, err = e.buildPortfolio(ctx, model, basket)
			if err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

// processDecision runs one coin's decision through risk and the model's
// automation level
func (e *Engine) processDecision(ctx context.Context, model *database.Model, settings *database.ModelSettings, decision *ai.Decision, basket *market.Basket, view *portfolioView) CycleAction {
	action := CycleAction{Coin: decision.Coin, Signal: decision.Signal}

	if !decision.IsActionable() {
		action.Outcome = OutcomeSkipped
		action.Reason = "hold"
		return action
	}

	if decision.Signal == ai.SignalClose && findPosition(view.positions, decision.Coin) == nil {
		action.Outcome = OutcomeSkipped
		action.Reason = "no open position"
		return action
	}

	// Closes and loose responses may omit an entry price; risk sizing and
	// pending entries use the current market price then
	if decision.EntryPrice.IsZero() {
		if snapshot, ok := basket.Snapshots[decision.Coin]; ok {
			decision.EntryPrice = snapshot.Price
		}
	}

	fullAuto := model.Automation == database.AutomationFull
	verdict := e.riskMgr.Evaluate(decision, view.risk, settings, fullAuto)
	if !verdict.Allowed {
		e.recordRejection(ctx, model.ID, decision, verdict.Reason, verdict.Severity)
		action.Outcome = OutcomeRejected
		action.Reason = verdict.Reason
		return action
	}

	switch model.Automation {
	case database.AutomationManual:
		e.logger.Info().
			Int64("model_id", model.ID).
			Str("coin", decision.Coin).
			Str("signal", decision.Signal).
			Msg("decision logged, manual automation takes no action")
		action.Outcome = OutcomeSkipped
		action.Reason = "manual automation"
		return action

	case database.AutomationSemi:
		return e.enqueuePending(ctx, model, decision, action)

	case database.AutomationFull:
		// Safety triggers run before the trade: a fired trigger drops the
		// model to semi and this decision queues for approval instead
		e.maybeAutoPause(ctx, model, settings)
		if model.Automation != database.AutomationFull {
			return e.enqueuePending(ctx, model, decision, action)
		}
		return e.execute(ctx, model, settings, decision, basket, view, action)
	}

	action.Outcome = OutcomeSkipped
	action.Reason = fmt.Sprintf("unknown automation %q", model.Automation)
	return action
}

// enqueuePending queues a semi-auto proposal for operator approval
func (e *Engine) enqueuePending(ctx context.Context, model *database.Model, decision *ai.Decision, action CycleAction) CycleAction {
	now := e.now().UTC()
	pd := &database.PendingDecision{
		ModelID:       model.ID,
		Coin:          decision.Coin,
		Signal:        decision.Signal,
		Quantity:      decision.Quantity,
		Leverage:      decision.Leverage,
		EntryPrice:    decision.EntryPrice,
		StopLoss:      decision.StopLoss,
		TakeProfit:    decision.TakeProfit,
		Confidence:    decision.Confidence,
		Justification: decision.Justification,
		Status:        database.PendingStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(e.pendingTTL),
	}

	err := e.store.CreatePendingDecision(ctx, pd)
	if errors.Is(err, database.ErrDuplicatePending) {
		e.recordRejection(ctx, model.ID, decision, "duplicate pending", database.SeverityMedium)
		action.Outcome = OutcomeSkipped
		action.Reason = "duplicate pending"
		return action
	}
	if err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Str("coin", decision.Coin).Msg("failed to queue pending decision")
		action.Outcome = OutcomeFailed
		action.Reason = err.Error()
		return action
	}

	e.bus.PublishPendingCreated(model.ID, pd.ID, pd.Coin)
	action.Outcome = OutcomePending
	return action
}

// execute runs the environment-appropriate executor and books the session
// counters
func (e *Engine) execute(ctx context.Context, model *database.Model, settings *database.ModelSettings, decision *ai.Decision, basket *market.Basket, view *portfolioView, action CycleAction) CycleAction {
	executor := e.simulation
	if model.Environment == database.EnvLive {
		executor = e.live
	}

	result, err := executor.Execute(ctx, model, settings, decision, basket, view.positions)
	if err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Str("coin", decision.Coin).Msg("execution error")
		e.bus.PublishError("engine", fmt.Sprintf("execution failed for model %d coin %s", model.ID, decision.Coin), err)
		action.Outcome = OutcomeFailed
		action.Reason = err.Error()
		return action
	}
	if result.Status == StatusFailed {
		action.Outcome = OutcomeFailed
		action.Reason = result.Reason
		return action
	}

	if err := e.profiles.RecordTrade(ctx, model.ID, result.RealizedPnL, currentDrawdownPct(view.risk)); err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("failed to record session trade")
	}

	e.bus.PublishTradeExecuted(model.ID, decision.Coin, result.Trade.Side,
		result.Trade.Quantity.String(), result.Trade.Price.String(), result.Status)

	action.Outcome = OutcomeExecuted
	if result.Status == StatusSimulated {
		action.Outcome = OutcomeSimulated
	}
	return action
}

// maybeAutoPause checks the safety triggers and drops the model from full to
// semi automation when one fires. The current cycle keeps running; actionable
// decisions queue for approval instead.
func (e *Engine) maybeAutoPause(ctx context.Context, model *database.Model, settings *database.ModelSettings) {
	if !settings.AutoPauseEnabled || model.Automation != database.AutomationFull {
		return
	}

	reason, details, fired := e.autoPauseTrigger(ctx, model, settings)
	if !fired {
		return
	}

	if err := e.store.UpdateModelAutomation(ctx, model.ID, database.AutomationSemi); err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("failed to drop automation level")
		return
	}
	model.Automation = database.AutomationSemi

	inc := &database.Incident{
		ModelID:   &model.ID,
		Type:      database.IncidentAutoPause,
		Severity:  database.SeverityHigh,
		Message:   fmt.Sprintf("automation dropped to semi: %s", reason),
		Details:   details,
		Timestamp: e.now().UTC(),
	}
	if err := e.store.CreateIncident(ctx, inc); err != nil {
		e.logger.Error().Err(err).Msg("failed to write auto-pause incident")
	}

	e.bus.Publish(events.Event{
		Type:    events.EventAutoPause,
		ModelID: model.ID,
		Data:    details,
	})
	e.logger.Warn().Int64("model_id", model.ID).Str("reason", reason).Msg("auto-pause fired")
}

// autoPauseTrigger evaluates the three triggers against the refreshed trade
// log: a losing streak, a collapsed recent win rate, and the daily loss limit
func (e *Engine) autoPauseTrigger(ctx context.Context, model *database.Model, settings *database.ModelSettings) (string, map[string]any, bool) {
	closes, err := e.store.ListClosingTrades(ctx, model.ID, recentTradeWindow)
	if err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("auto-pause check skipped, trade log unavailable")
		return "", nil, false
	}

	if settings.AutoPauseConsecutiveLosses > 0 {
		streak := 0
		for _, t := range closes {
			if t.RealizedPnL.IsPositive() {
				break
			}
			// Flat closes neither extend nor break the streak
			if t.RealizedPnL.IsNegative() {
				streak++
			}
		}
		if streak >= settings.AutoPauseConsecutiveLosses {
			return "consecutive losses",
				map[string]any{"trigger": "consecutive_losses", "streak": streak}, true
		}
	}

	// Win rate needs a full window before it can fire
	if settings.AutoPauseWinRateThreshold.IsPositive() && len(closes) >= recentTradeWindow {
		wins := 0
		for _, t := range closes {
			if t.RealizedPnL.IsPositive() {
				wins++
			}
		}
		winRate := decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(len(closes)))).
			Mul(decimal.NewFromInt(100))
		if winRate.LessThan(settings.AutoPauseWinRateThreshold) {
			return "win rate below threshold",
				map[string]any{"trigger": "win_rate", "win_rate_pct": winRate.String()}, true
		}
	}

	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayPnL, err := e.store.SumRealizedPnLBetween(ctx, model.ID, dayStart, now)
	if err != nil {
		e.logger.Error().Err(err).Int64("model_id", model.ID).Msg("auto-pause daily loss check skipped")
		return "", nil, false
	}
	if settings.MaxDailyLossPct.IsPositive() && model.InitialCapital.IsPositive() {
		lossPct := todayPnL.Div(model.InitialCapital).Mul(decimal.NewFromInt(100))
		if lossPct.LessThanOrEqual(settings.MaxDailyLossPct.Neg()) {
			return "daily loss limit reached",
				map[string]any{"trigger": "daily_loss", "today_pnl_pct": lossPct.String()}, true
		}
	}

	return "", nil, false
}

// recordCycleFailure writes the API_ERROR incident for a cycle aborted by a
// failed upstream call
func (e *Engine) recordCycleFailure(ctx context.Context, modelID int64, stage string, cause error) {
	inc := &database.Incident{
		ModelID:  &modelID,
		Type:     database.IncidentAPIError,
		Severity: database.SeverityHigh,
		Message:  fmt.Sprintf("cycle aborted: %s failed: %v", stage, cause),
		Details: map[string]any{
			"stage": stage,
			"error": cause.Error(),
		},
		Timestamp: e.now().UTC(),
	}
	if err := e.store.CreateIncident(ctx, inc); err != nil {
		e.logger.Error().Err(err).Int64("model_id", modelID).Msg("failed to write cycle-failure incident")
	}
	e.bus.PublishError("engine", fmt.Sprintf("%s failed for model %d", stage, modelID), cause)
}

// recordRejection writes the audit incident and event for a denied decision
func (e *Engine) recordRejection(ctx context.Context, modelID int64, decision *ai.Decision, reason, severity string) {
	inc := &database.Incident{
		ModelID:  &modelID,
		Type:     database.IncidentTradeRejected,
		Severity: severity,
		Message:  fmt.Sprintf("trade rejected for %s: %s", decision.Coin, reason),
		Details: map[string]any{
			"coin":     decision.Coin,
			"signal":   decision.Signal,
			"quantity": decision.Quantity.String(),
			"reason":   reason,
		},
		Timestamp: e.now().UTC(),
	}
	if err := e.store.CreateIncident(ctx, inc); err != nil {
		e.logger.Error().Err(err).Msg("failed to write rejection incident")
	}
	e.bus.PublishTradeRejected(modelID, decision.Coin, reason)
}

func (e *Engine) publishCycleCompleted(report *CycleReport) {
	e.bus.Publish(events.Event{
		Type:    events.EventCycleCompleted,
		ModelID: report.ModelID,
		Data: map[string]any{
			"cycle_id":    report.ID,
			"skipped":     report.Skipped,
			"skip_reason": report.SkipReason,
			"executed":    report.Count(OutcomeExecuted) + report.Count(OutcomeSimulated),
			"pending":     report.Count(OutcomePending),
			"rejected":    report.Count(OutcomeRejected),
			"failed":      report.Count(OutcomeFailed),
			"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		},
	})
}

// currentDrawdownPct measures how far the portfolio sits below its realized
// peak
func currentDrawdownPct(p *risk.Portfolio) decimal.Decimal {
	if !p.PeakValue.IsPositive() {
		return decimal.Zero
	}
	dd := p.PeakValue.Sub(p.TotalValue).Div(p.PeakValue).Mul(decimal.NewFromInt(100))
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}
