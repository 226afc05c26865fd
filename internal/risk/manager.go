package risk

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
)

// Denial reasons, in check order
const (
	ReasonPositionSize     = "POSITION_SIZE"
	ReasonMaxOpenPositions = "MAX_OPEN_POSITIONS"
	ReasonMaxDailyTrades   = "MAX_DAILY_TRADES"
	ReasonMinCashReserve   = "MIN_CASH_RESERVE"
	ReasonDailyLossLimit   = "DAILY_LOSS_LIMIT"
	ReasonMaxDrawdown      = "MAX_DRAWDOWN"
)

// Portfolio is the point-in-time state risk checks run against. The engine
// assembles it under the model's cycle lock so all checks in one cycle see a
// consistent view.
type Portfolio struct {
	Cash             decimal.Decimal
	TotalValue       decimal.Decimal
	StartOfDayValue  decimal.Decimal
	PeakValue        decimal.Decimal
	Positions        []*database.Position
	TradesToday      int
	TodayRealizedPnL decimal.Decimal
}

// Verdict is the outcome of a risk evaluation. A deny carries the first
// failed check's reason; checks after the first failure are not evaluated.
type Verdict struct {
	Allowed  bool
	Reason   string
	Severity string
}

func allow() Verdict {
	return Verdict{Allowed: true}
}

func deny(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Severity: database.SeverityMedium}
}

// Manager runs pre-trade checks. It is a pure function over its inputs; the
// caller persists the TRADE_REJECTED incident on a deny.
type Manager struct {
	logger zerolog.Logger
}

// NewManager creates a risk manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Evaluate runs the checks in order and returns the first failure, if any.
// The drawdown check only applies to fully automated execution.
func (m *Manager) Evaluate(decision *ai.Decision, portfolio *Portfolio, settings *database.ModelSettings, fullAuto bool) Verdict {
	hundred := decimal.NewFromInt(100)
	notional := decision.Quantity.Mul(decision.EntryPrice)

	// 1. Position size cap, as a share of total value
	maxNotional := portfolio.TotalValue.Mul(settings.MaxPositionSizePct).Div(hundred)
	if notional.GreaterThan(maxNotional) {
		m.logDeny(decision, ReasonPositionSize)
		return deny(ReasonPositionSize)
	}

	// 2. Open position count, openers only
	if decision.IsOpener() && len(portfolio.Positions) >= settings.MaxOpenPositions {
		m.logDeny(decision, ReasonMaxOpenPositions)
		return deny(ReasonMaxOpenPositions)
	}

	// 3. Daily trade count: the N-th trade of the day is allowed, the
	// (N+1)-th is denied
	if portfolio.TradesToday >= settings.MaxDailyTrades {
		m.logDeny(decision, ReasonMaxDailyTrades)
		return deny(ReasonMaxDailyTrades)
	}

	// 4. Cash reserve after the trade, openers only
	if decision.IsOpener() && portfolio.TotalValue.IsPositive() {
		remaining := portfolio.Cash.Sub(notional)
		reservePct := remaining.Div(portfolio.TotalValue).Mul(hundred)
		if reservePct.LessThan(settings.MinCashReservePct) {
			m.logDeny(decision, ReasonMinCashReserve)
			return deny(ReasonMinCashReserve)
		}
	}

	// 5. Daily loss circuit breaker, all automation levels
	if portfolio.StartOfDayValue.IsPositive() {
		lossPct := portfolio.TodayRealizedPnL.Div(portfolio.StartOfDayValue).Mul(hundred)
		if lossPct.LessThanOrEqual(settings.MaxDailyLossPct.Neg()) {
			m.logDeny(decision, ReasonDailyLossLimit)
			return deny(ReasonDailyLossLimit)
		}
	}

	// 6. Peak-to-current drawdown, full-auto only
	if fullAuto && portfolio.PeakValue.IsPositive() {
		drawdownPct := portfolio.PeakValue.Sub(portfolio.TotalValue).Div(portfolio.PeakValue).Mul(hundred)
		if drawdownPct.GreaterThanOrEqual(settings.MaxDrawdownPct) {
			m.logDeny(decision, ReasonMaxDrawdown)
			return deny(ReasonMaxDrawdown)
		}
	}

	return allow()
}

func (m *Manager) logDeny(decision *ai.Decision, reason string) {
	m.logger.Info().
		Str("coin", decision.Coin).
		Str("signal", decision.Signal).
		Str("reason", reason).
		Msg("trade denied by risk check")
}
