package profile

import (
	"context"
	"testing"
	"time"

	"trading-orchestrator/internal/database"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type closedSession struct {
	sessionID      int64
	end            time.Time
	trades         int
	wins           int
	losses         int
	totalPnL       decimal.Decimal
	maxDrawdownPct decimal.Decimal
}

type fakeStore struct {
	model    *database.Model
	settings *database.ModelSettings
	profiles map[int64]*database.RiskProfile
	session  *database.ProfileSession
	trades   []*database.Trade

	closed    *closedSession
	opened    bool
	incidents []*database.Incident
}

func (f *fakeStore) GetModel(ctx context.Context, id int64) (*database.Model, error) {
	return f.model, nil
}

func (f *fakeStore) GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error) {
	s := *f.settings
	return &s, nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, s *database.ModelSettings) error {
	f.settings = s
	return nil
}

func (f *fakeStore) GetProfile(ctx context.Context, id int64) (*database.RiskProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetProfileByName(ctx context.Context, name string) (*database.RiskProfile, error) {
	for _, p := range f.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) ListProfiles(ctx context.Context) ([]*database.RiskProfile, error) {
	out := make([]*database.RiskProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SeedSystemProfile(ctx context.Context, p *database.RiskProfile) error {
	return nil
}

func (f *fakeStore) GetOpenSession(ctx context.Context, modelID int64) (*database.ProfileSession, error) {
	if f.session == nil {
		return nil, database.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeStore) OpenSession(ctx context.Context, modelID, profileID int64, now time.Time) (*database.ProfileSession, error) {
	f.opened = true
	return &database.ProfileSession{ID: 99, ModelID: modelID, ProfileID: profileID, StartTime: now}, nil
}

func (f *fakeStore) CloseSession(ctx context.Context, sessionID int64, end time.Time, trades, wins, losses int, totalPnL, maxDrawdownPct decimal.Decimal) error {
	f.closed = &closedSession{sessionID, end, trades, wins, losses, totalPnL, maxDrawdownPct}
	f.session = nil
	return nil
}

func (f *fakeStore) RecordSessionTrade(ctx context.Context, modelID int64, realizedPnL *decimal.Decimal, drawdownPct decimal.Decimal) error {
	return nil
}

func (f *fakeStore) ListTradesSince(ctx context.Context, modelID int64, since time.Time) ([]*database.Trade, error) {
	var out []*database.Trade
	for _, t := range f.trades {
		if !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
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

func (f *fakeStore) CreateIncident(ctx context.Context, inc *database.Incident) error {
	f.incidents = append(f.incidents, inc)
	return nil
}

func seededProfiles() map[int64]*database.RiskProfile {
	out := make(map[int64]*database.RiskProfile)
	for i, p := range Presets() {
		cp := *p
		cp.ID = int64(i + 1)
		out[cp.ID] = &cp
	}
	return out
}

func profileID(profiles map[int64]*database.RiskProfile, name string) int64 {
	for id, p := range profiles {
		if p.Name == name {
			return id
		}
	}
	return 0
}

func TestPresetValues(t *testing.T) {
	type limits struct {
		positionPct string
		dailyLoss   string
		dailyTrades int
		openPos     int
		cashReserve string
		drawdown    string
	}
	want := map[string]limits{
		PresetUltraSafe:    {"5", "1", 5, 2, "40", "8"},
		PresetConservative: {"8", "2", 10, 3, "30", "10"},
		PresetBalanced:     {"10", "3", 20, 5, "20", "15"},
		PresetAggressive:   {"15", "5", 40, 7, "10", "20"},
		PresetScalper:      {"12", "4", 100, 8, "15", "18"},
	}

	presets := Presets()
	if len(presets) != 5 {
		t.Fatalf("presets = %d, want 5", len(presets))
	}
	for _, p := range presets {
		w, ok := want[p.Name]
		if !ok {
			t.Fatalf("unexpected preset %s", p.Name)
		}
		if !p.IsSystem {
			t.Errorf("%s: system flag not set", p.Name)
		}
		if !p.MaxPositionSizePct.Equal(dec(w.positionPct)) ||
			!p.MaxDailyLossPct.Equal(dec(w.dailyLoss)) ||
			p.MaxDailyTrades != w.dailyTrades ||
			p.MaxOpenPositions != w.openPos ||
			!p.MinCashReservePct.Equal(dec(w.cashReserve)) ||
			!p.MaxDrawdownPct.Equal(dec(w.drawdown)) {
			t.Errorf("%s limits do not match the preset table: %+v", p.Name, p)
		}
	}
}

func TestApplyClosesSessionWithRecomputedAggregates(t *testing.T) {
	profiles := seededProfiles()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)

	store := &fakeStore{
		model:    &database.Model{ID: 1, InitialCapital: dec("10000")},
		settings: &database.ModelSettings{ModelID: 1},
		profiles: profiles,
		session:  &database.ProfileSession{ID: 7, ModelID: 1, StartTime: start},
		trades: []*database.Trade{
			{Side: database.TradeSideBuy, Timestamp: start.Add(time.Hour)},
			{Side: database.TradeSideClose, RealizedPnL: dec("50"), Timestamp: start.Add(2 * time.Hour)},
			{Side: database.TradeSideClose, RealizedPnL: dec("30"), Timestamp: start.Add(3 * time.Hour)},
			{Side: database.TradeSideClose, RealizedPnL: dec("-20"), Timestamp: start.Add(4 * time.Hour)},
			{Side: database.TradeSideClose, RealizedPnL: dec("10"), Timestamp: start.Add(5 * time.Hour)},
			// After the session end, must not count
			{Side: database.TradeSideClose, RealizedPnL: dec("999"), Timestamp: end.Add(time.Hour)},
		},
	}

	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return end }

	target := profileID(profiles, PresetConservative)
	if err := eng.Apply(context.Background(), 1, target); err != nil {
		t.Fatal(err)
	}

	if store.closed == nil {
		t.Fatal("open session was not closed")
	}
	if store.closed.sessionID != 7 || !store.closed.end.Equal(end) {
		t.Fatalf("closed = %+v", store.closed)
	}
	if store.closed.trades != 5 || store.closed.wins != 3 || store.closed.losses != 1 {
		t.Fatalf("aggregates = %d/%d/%d, want 5 trades, 3 wins, 1 loss",
			store.closed.trades, store.closed.wins, store.closed.losses)
	}
	if !store.closed.totalPnL.Equal(dec("70")) {
		t.Fatalf("total pnl = %s, want 70", store.closed.totalPnL)
	}

	if !store.opened {
		t.Fatal("no new session opened")
	}
	if !store.settings.MaxPositionSizePct.Equal(dec("8")) || store.settings.MaxDailyTrades != 10 {
		t.Fatalf("settings not overwritten by Conservative: %+v", store.settings)
	}
	if store.settings.ActiveProfileID == nil || *store.settings.ActiveProfileID != target {
		t.Fatal("active profile id not recorded")
	}

	if len(store.incidents) != 1 || store.incidents[0].Type != database.IncidentProfileChange {
		t.Fatalf("incidents = %+v", store.incidents)
	}
}

func TestApplyFlatCloseIsNeitherWinNorLoss(t *testing.T) {
	profiles := seededProfiles()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	store := &fakeStore{
		model:    &database.Model{ID: 1, InitialCapital: dec("10000")},
		settings: &database.ModelSettings{ModelID: 1},
		profiles: profiles,
		session:  &database.ProfileSession{ID: 3, ModelID: 1, StartTime: start},
		trades: []*database.Trade{
			{Side: database.TradeSideClose, RealizedPnL: dec("25"), Timestamp: start.Add(10 * time.Minute)},
			{Side: database.TradeSideClose, RealizedPnL: decimal.Zero, Timestamp: start.Add(20 * time.Minute)},
			{Side: database.TradeSideClose, RealizedPnL: dec("-25"), Timestamp: start.Add(30 * time.Minute)},
		},
	}

	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return end }

	if err := eng.Apply(context.Background(), 1, profileID(profiles, PresetBalanced)); err != nil {
		t.Fatal(err)
	}
	if store.closed == nil {
		t.Fatal("open session was not closed")
	}
	if store.closed.trades != 3 || store.closed.wins != 1 || store.closed.losses != 1 {
		t.Fatalf("aggregates = %d/%d/%d, want 3 trades, 1 win, 1 loss",
			store.closed.trades, store.closed.wins, store.closed.losses)
	}
	if !store.closed.totalPnL.IsZero() {
		t.Fatalf("total pnl = %s, want 0", store.closed.totalPnL)
	}
}

func TestApplyWithoutOpenSession(t *testing.T) {
	profiles := seededProfiles()
	store := &fakeStore{
		model:    &database.Model{ID: 1},
		settings: &database.ModelSettings{ModelID: 1},
		profiles: profiles,
	}
	eng := NewEngine(store, zerolog.Nop())

	if err := eng.Apply(context.Background(), 1, profileID(profiles, PresetBalanced)); err != nil {
		t.Fatal(err)
	}
	if store.closed != nil {
		t.Fatal("nothing to close")
	}
	if !store.opened {
		t.Fatal("no session opened")
	}
}

func namedProfiles() map[string]*database.RiskProfile {
	out := make(map[string]*database.RiskProfile)
	for id, p := range seededProfiles() {
		p.ID = id
		out[p.Name] = p
	}
	return out
}

func TestEvaluateRulesInsufficientData(t *testing.T) {
	rec := EvaluateRules(&Stats{ClosedTrades: 3}, namedProfiles(), 0)
	if rec.ProfileName != PresetBalanced || rec.Confidence != 40 {
		t.Fatalf("rec = %+v, want Balanced at 40", rec)
	}
	if !rec.ShouldSwitch {
		t.Fatal("no active profile means any recommendation is a switch")
	}
}

func TestEvaluateRulesEmergency(t *testing.T) {
	cases := []Stats{
		{ClosedTrades: 20, DrawdownPct: dec("16"), WinRate10: dec("50"), WinRate30: dec("50")},
		{ClosedTrades: 20, WinRate10: dec("20"), WinRate30: dec("50")},
		{ClosedTrades: 20, ConsecutiveLosses: 5, WinRate10: dec("50"), WinRate30: dec("50")},
	}
	for i, stats := range cases {
		rec := EvaluateRules(&stats, namedProfiles(), 0)
		if rec.ProfileName != PresetUltraSafe || rec.Confidence != 90 {
			t.Errorf("case %d: rec = %s at %d, want Ultra-Safe at 90", i, rec.ProfileName, rec.Confidence)
		}
	}
}

func TestEvaluateRulesCautious(t *testing.T) {
	stats := &Stats{ClosedTrades: 20, DrawdownPct: dec("10"), WinRate10: dec("50"), WinRate30: dec("50")}
	rec := EvaluateRules(stats, namedProfiles(), 0)
	if rec.ProfileName != PresetConservative || rec.Confidence != 75 {
		t.Fatalf("rec = %s at %d, want Conservative at 75", rec.ProfileName, rec.Confidence)
	}
}

func TestEvaluateRulesNormal(t *testing.T) {
	stats := &Stats{ClosedTrades: 20, DrawdownPct: dec("3"), WinRate10: dec("55"), WinRate30: dec("55")}
	rec := EvaluateRules(stats, namedProfiles(), 0)
	if rec.ProfileName != PresetBalanced || rec.Confidence != 70 {
		t.Fatalf("rec = %s at %d, want Balanced at 70", rec.ProfileName, rec.Confidence)
	}
}

func TestEvaluateRulesAggressive(t *testing.T) {
	stats := &Stats{ClosedTrades: 20, DrawdownPct: dec("2"), WinRate10: dec("70"), WinRate30: dec("70")}
	rec := EvaluateRules(stats, namedProfiles(), 0)
	if rec.ProfileName != PresetAggressive || rec.Confidence != 80 {
		t.Fatalf("rec = %s at %d, want Aggressive at 80", rec.ProfileName, rec.Confidence)
	}
}

func TestEvaluateRulesScalper(t *testing.T) {
	stats := &Stats{
		ClosedTrades: 20,
		DrawdownPct:  dec("6"),
		WinRate10:    dec("40"),
		WinRate30:    dec("65"),
		TradesToday:  18,
		Volatility:   dec("0.5"),
	}
	rec := EvaluateRules(stats, namedProfiles(), 0)
	if rec.ProfileName != PresetScalper || rec.Confidence != 65 {
		t.Fatalf("rec = %s at %d, want Scalper at 65", rec.ProfileName, rec.Confidence)
	}
}

func TestEvaluateRulesFallback(t *testing.T) {
	profiles := namedProfiles()
	stats := &Stats{ClosedTrades: 20, DrawdownPct: dec("6"), WinRate10: dec("70"), WinRate30: dec("70")}
	rec := EvaluateRules(stats, profiles, profiles[PresetBalanced].ID)
	if rec.ProfileName != PresetBalanced || rec.Confidence != 50 {
		t.Fatalf("rec = %s at %d, want Balanced at 50", rec.ProfileName, rec.Confidence)
	}
	if rec.ShouldSwitch {
		t.Fatal("recommending the active profile is not a switch")
	}
	if len(rec.Alternatives) != 4 {
		t.Fatalf("alternatives = %d, want 4", len(rec.Alternatives))
	}
}

func TestRecommendGathersStats(t *testing.T) {
	profiles := seededProfiles()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Five straight losses, newest first
	var trades []*database.Trade
	for i := 0; i < 5; i++ {
		trades = append(trades, &database.Trade{
			Side:        database.TradeSideClose,
			RealizedPnL: dec("-50"),
			Timestamp:   now.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	store := &fakeStore{
		model:    &database.Model{ID: 1, InitialCapital: dec("10000")},
		settings: &database.ModelSettings{ModelID: 1},
		profiles: profiles,
		trades:   trades,
	}
	eng := NewEngine(store, zerolog.Nop())
	eng.now = func() time.Time { return now }

	rec, err := eng.Recommend(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ProfileName != PresetUltraSafe {
		t.Fatalf("rec = %s, want Ultra-Safe after a five-loss streak", rec.ProfileName)
	}
}
