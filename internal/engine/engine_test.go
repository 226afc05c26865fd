package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-orchestrator/internal/ai"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/events"
	"trading-orchestrator/internal/market"
	"trading-orchestrator/internal/profile"
	"trading-orchestrator/internal/risk"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fakeStore backs a whole cycle in memory. It satisfies both the engine's
// Store and the profile engine's store surface.
type fakeStore struct {
	model      *database.Model
	settings   *database.ModelSettings
	positions  []*database.Position
	trades     []*database.Trade
	incidents  []*database.Incident
	pendings   []*database.PendingDecision
	executions []*database.ExecutionRecord

	sessionTrades int

	pendingErr error
}

func (f *fakeStore) GetModel(ctx context.Context, id int64) (*database.Model, error) {
	m := *f.model
	return &m, nil
}

func (f *fakeStore) GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error) {
	s := *f.settings
	return &s, nil
}

func (f *fakeStore) UpdateModelAutomation(ctx context.Context, id int64, automation string) error {
	f.model.Automation = automation
	return nil
}

func (f *fakeStore) UpdateModelStatus(ctx context.Context, id int64, status string) error {
	f.model.Status = status
	return nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, s *database.ModelSettings) error {
	f.settings = s
	return nil
}

func (f *fakeStore) ListPositions(ctx context.Context, modelID int64) ([]*database.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) ListTrades(ctx context.Context, modelID int64, limit int) ([]*database.Trade, error) {
	if len(f.trades) > limit {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func (f *fakeStore) ListTradesSince(ctx context.Context, modelID int64, since time.Time) ([]*database.Trade, error) {
	return f.trades, nil
}

func (f *fakeStore) ListClosingTrades(ctx context.Context, modelID int64, limit int) ([]*database.Trade, error) {
	var closes []*database.Trade
	for _, t := range f.trades {
		if t.Side == database.TradeSideClose {
			closes = append(closes, t)
		}
	}
	if len(closes) > limit {
		closes = closes[:limit]
	}
	return closes, nil
}

func (f *fakeStore) CountTradesSince(ctx context.Context, modelID int64, since time.Time) (int, error) {
	n := 0
	for _, t := range f.trades {
		if !t.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SumRealizedPnLBetween(ctx context.Context, modelID int64, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range f.trades {
		if !t.Timestamp.Before(from) && !t.Timestamp.After(to) {
			sum = sum.Add(t.RealizedPnL)
		}
	}
	return sum, nil
}

func (f *fakeStore) ApplyExecution(ctx context.Context, rec *database.ExecutionRecord) error {
	f.executions = append(f.executions, rec)
	f.trades = append([]*database.Trade{rec.Trade}, f.trades...)
	f.model.Cash = rec.NewCash

	remaining := f.positions[:0]
	for _, p := range f.positions {
		if rec.RemoveCoin != "" && p.Coin == rec.RemoveCoin && p.Side == rec.RemoveSide {
			continue
		}
		if rec.Position != nil && p.Coin == rec.Position.Coin && p.Side == rec.Position.Side {
			continue
		}
		remaining = append(remaining, p)
	}
	f.positions = remaining
	if rec.Position != nil {
		f.positions = append(f.positions, rec.Position)
	}
	return nil
}

func (f *fakeStore) CreatePendingDecision(ctx context.Context, pd *database.PendingDecision) error {
	if f.pendingErr != nil {
		return f.pendingErr
	}
	pd.ID = int64(len(f.pendings) + 1)
	f.pendings = append(f.pendings, pd)
	return nil
}

func (f *fakeStore) CreateIncident(ctx context.Context, inc *database.Incident) error {
	f.incidents = append(f.incidents, inc)
	return nil
}

// Profile-engine surface not exercised by cycles

func (f *fakeStore) GetProfile(ctx context.Context, id int64) (*database.RiskProfile, error) {
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetProfileByName(ctx context.Context, name string) (*database.RiskProfile, error) {
	return nil, database.ErrNotFound
}

func (f *fakeStore) ListProfiles(ctx context.Context) ([]*database.RiskProfile, error) {
	return nil, nil
}

func (f *fakeStore) SeedSystemProfile(ctx context.Context, p *database.RiskProfile) error {
	return nil
}

func (f *fakeStore) GetOpenSession(ctx context.Context, modelID int64) (*database.ProfileSession, error) {
	return nil, database.ErrNotFound
}

func (f *fakeStore) OpenSession(ctx context.Context, modelID, profileID int64, now time.Time) (*database.ProfileSession, error) {
	return &database.ProfileSession{}, nil
}

func (f *fakeStore) CloseSession(ctx context.Context, sessionID int64, end time.Time, trades, wins, losses int, totalPnL, maxDrawdownPct decimal.Decimal) error {
	return nil
}

func (f *fakeStore) RecordSessionTrade(ctx context.Context, modelID int64, realizedPnL *decimal.Decimal, drawdownPct decimal.Decimal) error {
	f.sessionTrades++
	return nil
}

type fakeMarket struct {
	basket *market.Basket
	err    error
}

func (f *fakeMarket) GetBasket(ctx context.Context) (*market.Basket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.basket, nil
}

func (f *fakeMarket) Coins() []string {
	coins := make([]string, 0, len(f.basket.Snapshots))
	for c := range f.basket.Snapshots {
		coins = append(coins, c)
	}
	return coins
}

type fakeDecider struct {
	decisions map[string]ai.Decision
	err       error
}

func (f *fakeDecider) Decide(ctx context.Context, req *ai.Request) (map[string]ai.Decision, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.decisions, nil
}

func basketOf(prices map[string]string) *market.Basket {
	snapshots := make(map[string]*market.Snapshot, len(prices))
	for coin, price := range prices {
		snapshots[coin] = &market.Snapshot{Coin: coin, Price: dec(price)}
	}
	return &market.Basket{Snapshots: snapshots, FetchedAt: time.Now().UTC()}
}

func newTestEngine(store *fakeStore, data MarketData, decider ai.Decider) *Engine {
	logger := zerolog.Nop()
	profiles := profile.NewEngine(store, logger)
	sim := NewSimulationExecutor(store, logger)
	return New(store, data, decider, risk.NewManager(logger), profiles, sim, sim, events.NewBus(), logger)
}

func balancedStore(cash, automation string) *fakeStore {
	return &fakeStore{
		model: &database.Model{
			ID:             1,
			Name:           "test",
			Provider:       "claude",
			InitialCapital: dec("10000"),
			Cash:           dec(cash),
			Status:         database.ModelStatusActive,
			Environment:    database.EnvSimulation,
			Automation:     automation,
		},
		settings: &database.ModelSettings{
			ModelID:            1,
			MaxPositionSizePct: dec("10"),
			MaxDailyLossPct:    dec("3"),
			MaxDailyTrades:     20,
			MaxOpenPositions:   5,
			MinCashReservePct:  dec("20"),
			MaxDrawdownPct:     dec("15"),
			FeeRate:            dec("0.001"),
		},
	}
}

func incidentsOfType(incidents []*database.Incident, incidentType string) []*database.Incident {
	var out []*database.Incident
	for _, inc := range incidents {
		if inc.Type == incidentType {
			out = append(out, inc)
		}
	}
	return out
}

func TestRunCycleSimulationFullAuto(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {
			Coin:       "BTC",
			Signal:     ai.SignalBuyToEnter,
			Quantity:   dec("0.02"),
			EntryPrice: dec("40000"),
			Confidence: 0.7,
		},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if got := report.Count(OutcomeSimulated); got != 1 {
		t.Fatalf("simulated = %d, want 1", got)
	}
	if got := report.Count(OutcomePending) + report.Count(OutcomeRejected); got != 0 {
		t.Fatalf("pending+rejected = %d, want 0", got)
	}
	if !store.model.Cash.Equal(dec("9199.20")) {
		t.Fatalf("cash = %s, want 9199.20", store.model.Cash)
	}
	if len(store.positions) != 1 || !store.positions[0].Quantity.Equal(dec("0.02")) {
		t.Fatalf("positions = %+v", store.positions)
	}
	if len(store.trades) != 1 || !store.trades[0].Fee.Equal(dec("0.80")) {
		t.Fatalf("trades = %+v", store.trades)
	}
	if store.sessionTrades != 1 {
		t.Fatalf("session trades = %d, want 1", store.sessionTrades)
	}
}

func TestRunCycleSemiEnqueues(t *testing.T) {
	store := balancedStore("10000", database.AutomationSemi)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {
			Coin:       "BTC",
			Signal:     ai.SignalBuyToEnter,
			Quantity:   dec("0.02"),
			EntryPrice: dec("40000"),
		},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if got := report.Count(OutcomePending); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	if len(store.trades) != 0 || len(store.positions) != 0 {
		t.Fatal("semi must not execute")
	}
	if !store.model.Cash.Equal(dec("10000")) {
		t.Fatalf("cash moved to %s", store.model.Cash)
	}
	if len(store.pendings) != 1 {
		t.Fatalf("pendings = %d, want 1", len(store.pendings))
	}
	pd := store.pendings[0]
	if pd.Status != database.PendingStatusPending {
		t.Fatalf("status = %s", pd.Status)
	}
	if got := pd.ExpiresAt.Sub(pd.CreatedAt); got != time.Hour {
		t.Fatalf("expiry window = %s, want 1h", got)
	}
}

func TestRunCycleManualLogsOnly(t *testing.T) {
	store := balancedStore("10000", database.AutomationManual)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalBuyToEnter, Quantity: dec("0.01"), EntryPrice: dec("40000")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.trades) != 0 || len(store.pendings) != 0 {
		t.Fatal("manual must not execute or enqueue")
	}
	if len(report.Actions) != 1 || report.Actions[0].Reason != "manual automation" {
		t.Fatalf("actions = %+v", report.Actions)
	}
}

func TestRunCycleRiskDenialWritesIncident(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{basket: basketOf(map[string]string{"ETH": "2000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"ETH": {Coin: "ETH", Signal: ai.SignalBuyToEnter, Quantity: dec("1.0"), EntryPrice: dec("2000")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(store.trades) != 0 {
		t.Fatal("denied decision must not trade")
	}
	if len(report.Actions) != 1 || report.Actions[0].Outcome != OutcomeRejected {
		t.Fatalf("actions = %+v", report.Actions)
	}
	if report.Actions[0].Reason != risk.ReasonPositionSize {
		t.Fatalf("reason = %s, want POSITION_SIZE", report.Actions[0].Reason)
	}

	rejected := incidentsOfType(store.incidents, database.IncidentTradeRejected)
	if len(rejected) != 1 {
		t.Fatalf("TRADE_REJECTED incidents = %d, want 1", len(rejected))
	}
	if rejected[0].Severity != database.SeverityMedium {
		t.Fatalf("severity = %s, want medium", rejected[0].Severity)
	}
	if rejected[0].Details["reason"] != risk.ReasonPositionSize {
		t.Fatalf("incident reason = %v", rejected[0].Details["reason"])
	}
}

func TestRunCycleHoldSkipsQuietly(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalHold},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Actions) != 1 || report.Actions[0].Reason != "hold" {
		t.Fatalf("actions = %+v", report.Actions)
	}
	if len(store.incidents) != 0 {
		t.Fatal("holds write no incidents")
	}
}

func TestRunCycleCloseWithoutPositionSkips(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalClose, Quantity: dec("0.02")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Actions) != 1 || report.Actions[0].Reason != "no open position" {
		t.Fatalf("actions = %+v", report.Actions)
	}
}

func TestRunCycleDuplicatePending(t *testing.T) {
	store := balancedStore("10000", database.AutomationSemi)
	store.pendingErr = database.ErrDuplicatePending
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalBuyToEnter, Quantity: dec("0.01"), EntryPrice: dec("40000")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Actions) != 1 || report.Actions[0].Reason != "duplicate pending" {
		t.Fatalf("actions = %+v", report.Actions)
	}
	rejected := incidentsOfType(store.incidents, database.IncidentTradeRejected)
	if len(rejected) != 1 {
		t.Fatalf("TRADE_REJECTED incidents = %d, want 1", len(rejected))
	}
}

func TestAutoPauseOnConsecutiveLosses(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	store.settings.AutoPauseEnabled = true
	store.settings.AutoPauseConsecutiveLosses = 3

	// Seed three losing closes; timestamps old enough not to trip the
	// daily loss limit
	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		store.trades = append(store.trades, &database.Trade{
			ModelID:     1,
			Coin:        "BTC",
			Side:        database.TradeSideClose,
			RealizedPnL: dec("-10"),
			Timestamp:   old,
		})
	}

	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalBuyToEnter, Quantity: dec("0.01"), EntryPrice: dec("40000")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if store.model.Automation != database.AutomationSemi {
		t.Fatalf("automation = %s, want semi", store.model.Automation)
	}
	if got := report.Count(OutcomePending); got != 1 {
		t.Fatalf("pending = %d, want 1 (trade enqueued, not executed)", got)
	}
	if got := report.Count(OutcomeExecuted) + report.Count(OutcomeSimulated); got != 0 {
		t.Fatal("trade must not execute after auto-pause")
	}

	paused := incidentsOfType(store.incidents, database.IncidentAutoPause)
	if len(paused) != 1 {
		t.Fatalf("AUTO_PAUSE incidents = %d, want 1", len(paused))
	}
	if paused[0].Severity != database.SeverityHigh {
		t.Fatalf("severity = %s, want high", paused[0].Severity)
	}
}

func TestRunCyclePausedModelSkips(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	store.model.Status = database.ModelStatusPaused
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}

	eng := newTestEngine(store, data, &fakeDecider{})
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Skipped || report.SkipReason != "model paused" {
		t.Fatalf("report = %+v", report)
	}
}

func TestAutoPauseSkipsFlatCloses(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	store.settings.AutoPauseEnabled = true
	store.settings.AutoPauseConsecutiveLosses = 3

	// Newest close is flat; only two real losses sit behind it
	old := time.Now().UTC().Add(-48 * time.Hour)
	for _, pnl := range []string{"0", "-10", "-10"} {
		store.trades = append(store.trades, &database.Trade{
			ModelID:     1,
			Coin:        "BTC",
			Side:        database.TradeSideClose,
			RealizedPnL: dec(pnl),
			Timestamp:   old,
		})
	}

	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{decisions: map[string]ai.Decision{
		"BTC": {Coin: "BTC", Signal: ai.SignalBuyToEnter, Quantity: dec("0.01"), EntryPrice: dec("40000")},
	}}

	eng := newTestEngine(store, data, decider)
	report, err := eng.RunCycle(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if store.model.Automation != database.AutomationFull {
		t.Fatalf("automation = %s, flat closes must not extend the streak", store.model.Automation)
	}
	if got := report.Count(OutcomeSimulated); got != 1 {
		t.Fatalf("simulated = %d, want the trade executed", got)
	}
	if paused := incidentsOfType(store.incidents, database.IncidentAutoPause); len(paused) != 0 {
		t.Fatalf("AUTO_PAUSE incidents = %d, want 0", len(paused))
	}
}

func TestRunCycleMarketFailureWritesIncident(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{err: errors.New("ticker endpoint unreachable")}

	eng := newTestEngine(store, data, &fakeDecider{})
	if _, err := eng.RunCycle(context.Background(), 1); err == nil {
		t.Fatal("cycle must abort when market data is unavailable")
	}

	apiErrs := incidentsOfType(store.incidents, database.IncidentAPIError)
	if len(apiErrs) != 1 {
		t.Fatalf("API_ERROR incidents = %d, want 1", len(apiErrs))
	}
	if apiErrs[0].Severity != database.SeverityHigh {
		t.Fatalf("severity = %s, want high", apiErrs[0].Severity)
	}
	if apiErrs[0].Details["stage"] != "market_data" {
		t.Fatalf("stage = %v", apiErrs[0].Details["stage"])
	}
}

func TestRunCycleDeciderFailureWritesIncident(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	decider := &fakeDecider{err: errors.New("provider timeout")}

	eng := newTestEngine(store, data, decider)
	if _, err := eng.RunCycle(context.Background(), 1); err == nil {
		t.Fatal("cycle must abort when the decider fails")
	}

	apiErrs := incidentsOfType(store.incidents, database.IncidentAPIError)
	if len(apiErrs) != 1 {
		t.Fatalf("API_ERROR incidents = %d, want 1", len(apiErrs))
	}
	if apiErrs[0].Severity != database.SeverityHigh {
		t.Fatalf("severity = %s, want high", apiErrs[0].Severity)
	}
	if apiErrs[0].Details["stage"] != "ai_decider" {
		t.Fatalf("stage = %v", apiErrs[0].Details["stage"])
	}
	if len(store.trades) != 0 || len(store.pendings) != 0 {
		t.Fatal("aborted cycle must not act")
	}
}

func TestRunCycleInconsistentPositionPausesModel(t *testing.T) {
	store := balancedStore("10000", database.AutomationFull)
	store.positions = []*database.Position{{
		ModelID:       1,
		Coin:          "BTC",
		Side:          database.PositionLong,
		Quantity:      decimal.Zero,
		AvgEntryPrice: dec("40000"),
	}}
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}

	eng := newTestEngine(store, data, &fakeDecider{})
	if _, err := eng.RunCycle(context.Background(), 1); err == nil {
		t.Fatal("cycle must abort on a corrupted position")
	}

	if store.model.Status != database.ModelStatusPaused {
		t.Fatalf("status = %s, want paused", store.model.Status)
	}
	critical := incidentsOfType(store.incidents, database.IncidentExecutionError)
	if len(critical) != 1 {
		t.Fatalf("EXECUTION_ERROR incidents = %d, want 1", len(critical))
	}
	if critical[0].Severity != database.SeverityCritical {
		t.Fatalf("severity = %s, want critical", critical[0].Severity)
	}
	if critical[0].Details["coin"] != "BTC" {
		t.Fatalf("details = %+v", critical[0].Details)
	}
	if apiErrs := incidentsOfType(store.incidents, database.IncidentAPIError); len(apiErrs) != 0 {
		t.Fatalf("API_ERROR incidents = %d, corrupted state writes only the critical one", len(apiErrs))
	}
}

func TestExecuteApprovedRechecksRisk(t *testing.T) {
	store := balancedStore("10000", database.AutomationSemi)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	eng := newTestEngine(store, data, &fakeDecider{})

	// Oversized against the 10% cap at the current price
	pd := &database.PendingDecision{
		ID:       7,
		ModelID:  1,
		Coin:     "BTC",
		Signal:   ai.SignalBuyToEnter,
		Quantity: dec("1"),
		Status:   database.PendingStatusApproved,
	}
	result, err := eng.ExecuteApproved(context.Background(), pd)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusFailed || result.Reason != risk.ReasonPositionSize {
		t.Fatalf("result = %+v, want failed POSITION_SIZE", result)
	}
	if len(store.trades) != 0 {
		t.Fatal("denied approval must not trade")
	}
}

func TestExecuteApprovedHonorsModifiedQuantity(t *testing.T) {
	store := balancedStore("10000", database.AutomationSemi)
	data := &fakeMarket{basket: basketOf(map[string]string{"BTC": "40000"})}
	eng := newTestEngine(store, data, &fakeDecider{})

	modified := dec("0.01")
	pd := &database.PendingDecision{
		ID:               8,
		ModelID:          1,
		Coin:             "BTC",
		Signal:           ai.SignalBuyToEnter,
		Quantity:         dec("0.02"),
		Status:           database.PendingStatusApproved,
		ResolvedQuantity: &modified,
	}
	result, err := eng.ExecuteApproved(context.Background(), pd)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusSimulated {
		t.Fatalf("status = %s", result.Status)
	}
	if len(store.trades) != 1 || !store.trades[0].Quantity.Equal(modified) {
		t.Fatalf("trades = %+v, want quantity 0.01", store.trades)
	}
}
