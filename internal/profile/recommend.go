package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trading-orchestrator/internal/database"

	"github.com/shopspring/decimal"
)

// Volatility thresholds as percent of start-of-history equity, derived from
// the standard deviation of realized pnl over the last 30 closes
var (
	volatilityHigh = decimal.NewFromInt(2)
	volatilityLow  = decimal.NewFromInt(1)
)

// Stats summarizes a model's recent trade history for recommendation
type Stats struct {
	ClosedTrades      int
	WinRate30         decimal.Decimal // percent over last 30 closes
	WinRate10         decimal.Decimal // percent over last 10 closes
	DrawdownPct       decimal.Decimal // peak-to-current over the realized equity curve
	ConsecutiveLosses int
	TodayPnL          decimal.Decimal
	TradesToday       int
	Volatility        decimal.Decimal
}

// Alternative is a non-primary candidate with its score
type Alternative struct {
	ProfileID int64  `json:"profile_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
}

// Recommendation is the output of the rule engine
type Recommendation struct {
	ProfileID    int64         `json:"profile_id"`
	ProfileName  string        `json:"profile_name"`
	Confidence   int           `json:"confidence"` // 0-100
	Reason       string        `json:"reason"`
	ShouldSwitch bool          `json:"should_switch"`
	Alternatives []Alternative `json:"alternatives"`
}

// Recommend gathers trade history stats for a model and runs the rule table
func (e *Engine) Recommend(ctx context.Context, modelID int64) (*Recommendation, error) {
	model, err := e.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", modelID, err)
	}
	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("settings for model %d: %w", modelID, err)
	}

	stats, err := e.gatherStats(ctx, model)
	if err != nil {
		return nil, err
	}

	profiles, err := e.systemProfilesByName(ctx)
	if err != nil {
		return nil, err
	}

	var currentProfileID int64
	if settings.ActiveProfileID != nil {
		currentProfileID = *settings.ActiveProfileID
	}
	return EvaluateRules(stats, profiles, currentProfileID), nil
}

// EvaluateRules applies the recommendation rule table: the first matching
// rule wins. Deterministic; no external calls.
func EvaluateRules(stats *Stats, profiles map[string]*database.RiskProfile, currentProfileID int64) *Recommendation {
	pick := func(name, reason string, confidence int) *Recommendation {
		p := profiles[name]
		rec := &Recommendation{
			ProfileID:    p.ID,
			ProfileName:  p.Name,
			Confidence:   confidence,
			Reason:       reason,
			ShouldSwitch: p.ID != currentProfileID,
			Alternatives: rankAlternatives(stats, profiles, name),
		}
		return rec
	}

	if stats.ClosedTrades < 5 {
		return pick(PresetBalanced, "insufficient data", 40)
	}

	fifteen := decimal.NewFromInt(15)
	eight := decimal.NewFromInt(8)
	five := decimal.NewFromInt(5)

	// Emergency
	if stats.DrawdownPct.GreaterThan(fifteen) ||
		stats.WinRate10.LessThan(decimal.NewFromInt(30)) ||
		stats.ConsecutiveLosses >= 5 {
		return pick(PresetUltraSafe, "drawdown or losing streak requires capital preservation", 90)
	}

	// Cautious
	inCautiousDrawdown := stats.DrawdownPct.GreaterThanOrEqual(eight) && stats.DrawdownPct.LessThanOrEqual(fifteen)
	inCautiousWinRate := stats.WinRate30.GreaterThanOrEqual(decimal.NewFromInt(30)) &&
		stats.WinRate30.LessThanOrEqual(decimal.NewFromInt(45)) &&
		stats.Volatility.GreaterThanOrEqual(volatilityHigh)
	if inCautiousDrawdown || inCautiousWinRate {
		return pick(PresetConservative, "elevated drawdown or unstable win rate", 75)
	}

	// Normal
	if stats.WinRate30.GreaterThanOrEqual(decimal.NewFromInt(45)) &&
		stats.WinRate30.LessThanOrEqual(decimal.NewFromInt(60)) &&
		stats.DrawdownPct.LessThan(eight) {
		return pick(PresetBalanced, "steady performance within normal bounds", 70)
	}

	// Aggressive
	if stats.WinRate30.GreaterThan(decimal.NewFromInt(60)) && stats.DrawdownPct.LessThan(five) {
		return pick(PresetAggressive, "strong win rate with low drawdown", 80)
	}

	// Scalper
	if stats.TradesToday >= 15 && stats.Volatility.LessThanOrEqual(volatilityLow) {
		return pick(PresetScalper, "high trade frequency in a quiet market", 65)
	}

	return pick(PresetBalanced, "no specific pattern detected", 50)
}

// rankAlternatives scores the non-primary presets by how closely the stats
// match each preset's intended regime
func rankAlternatives(stats *Stats, profiles map[string]*database.RiskProfile, primary string) []Alternative {
	scores := map[string]int{
		PresetUltraSafe:    scoreClamp(stats.ConsecutiveLosses*15 + intFromDecimal(stats.DrawdownPct)*4),
		PresetConservative: scoreClamp(intFromDecimal(stats.DrawdownPct)*6 + 20),
		PresetBalanced:     60,
		PresetAggressive:   scoreClamp(intFromDecimal(stats.WinRate30) - intFromDecimal(stats.DrawdownPct)*5),
		PresetScalper:      scoreClamp(stats.TradesToday * 4),
	}

	alternatives := make([]Alternative, 0, len(scores)-1)
	for name, score := range scores {
		if name == primary {
			continue
		}
		p := profiles[name]
		alternatives = append(alternatives, Alternative{ProfileID: p.ID, Name: p.Name, Score: score})
	}
	sort.Slice(alternatives, func(i, j int) bool {
		if alternatives[i].Score != alternatives[j].Score {
			return alternatives[i].Score > alternatives[j].Score
		}
		return alternatives[i].Name < alternatives[j].Name
	})
	return alternatives
}

func (e *Engine) gatherStats(ctx context.Context, model *database.Model) (*Stats, error) {
	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	closes, err := e.store.ListClosingTrades(ctx, model.ID, 30)
	if err != nil {
		return nil, fmt.Errorf("closing trades: %w", err)
	}

	stats := &Stats{ClosedTrades: len(closes)}

	stats.WinRate30 = winRate(closes)
	if len(closes) > 10 {
		stats.WinRate10 = winRate(closes[:10])
	} else {
		stats.WinRate10 = stats.WinRate30
	}

	// Consecutive losses counted from the most recent close backwards
	for _, t := range closes {
		if t.RealizedPnL.IsNegative() {
			stats.ConsecutiveLosses++
		} else {
			break
		}
	}

	stats.DrawdownPct = realizedDrawdown(model.InitialCapital, closes)
	stats.Volatility = pnlVolatility(model.InitialCapital, closes)

	stats.TradesToday, err = e.store.CountTradesSince(ctx, model.ID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("trades today: %w", err)
	}
	stats.TodayPnL, err = e.store.SumRealizedPnLBetween(ctx, model.ID, dayStart, now)
	if err != nil {
		return nil, fmt.Errorf("today pnl: %w", err)
	}
	return stats, nil
}

func (e *Engine) systemProfilesByName(ctx context.Context) (map[string]*database.RiskProfile, error) {
	all, err := e.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	byName := make(map[string]*database.RiskProfile)
	for _, p := range all {
		if p.IsSystem {
			byName[p.Name] = p
		}
	}
	for _, preset := range Presets() {
		if _, ok := byName[preset.Name]; !ok {
			return nil, fmt.Errorf("system profile %s not seeded", preset.Name)
		}
	}
	return byName, nil
}

// winRate returns the win percentage over closing trades
func winRate(closes []*database.Trade) decimal.Decimal {
	if len(closes) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, t := range closes {
		if t.RealizedPnL.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins * 100)).Div(decimal.NewFromInt(int64(len(closes))))
}

// realizedDrawdown walks the realized equity curve (oldest first) and
// returns the peak-to-current drop as a percentage of the peak
func realizedDrawdown(initialCapital decimal.Decimal, closesNewestFirst []*database.Trade) decimal.Decimal {
	equity := initialCapital
	peak := initialCapital
	for i := len(closesNewestFirst) - 1; i >= 0; i-- {
		equity = equity.Add(closesNewestFirst[i].RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
	}
	if !peak.IsPositive() {
		return decimal.Zero
	}
	return peak.Sub(equity).Div(peak).Mul(decimal.NewFromInt(100))
}

// pnlVolatility is the population standard deviation of per-close pnl,
// expressed as a percentage of initial capital
func pnlVolatility(initialCapital decimal.Decimal, closes []*database.Trade) decimal.Decimal {
	if len(closes) < 2 || !initialCapital.IsPositive() {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(len(closes)))
	mean := decimal.Zero
	for _, t := range closes {
		mean = mean.Add(t.RealizedPnL)
	}
	mean = mean.Div(n)

	variance := decimal.Zero
	for _, t := range closes {
		d := t.RealizedPnL.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	// decimal has no square root; approximate with a few Newton iterations
	stddev := sqrtDecimal(variance)
	return stddev.Div(initialCapital).Mul(decimal.NewFromInt(100))
}

func sqrtDecimal(v decimal.Decimal) decimal.Decimal {
	if !v.IsPositive() {
		return decimal.Zero
	}
	guess := v
	two := decimal.NewFromInt(2)
	for i := 0; i < 20; i++ {
		guess = guess.Add(v.Div(guess)).Div(two)
	}
	return guess
}

func intFromDecimal(d decimal.Decimal) int {
	return int(d.IntPart())
}

func scoreClamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
