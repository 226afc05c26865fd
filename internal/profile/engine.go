package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-orchestrator/internal/database"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// store is the slice of the repository the profile engine needs
type store interface {
	GetModel(ctx context.Context, id int64) (*database.Model, error)
	GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error)
	UpdateSettings(ctx context.Context, s *database.ModelSettings) error
	GetProfile(ctx context.Context, id int64) (*database.RiskProfile, error)
	GetProfileByName(ctx context.Context, name string) (*database.RiskProfile, error)
	ListProfiles(ctx context.Context) ([]*database.RiskProfile, error)
	SeedSystemProfile(ctx context.Context, p *database.RiskProfile) error
	GetOpenSession(ctx context.Context, modelID int64) (*database.ProfileSession, error)
	OpenSession(ctx context.Context, modelID, profileID int64, now time.Time) (*database.ProfileSession, error)
	CloseSession(ctx context.Context, sessionID int64, end time.Time, trades, wins, losses int, totalPnL, maxDrawdownPct decimal.Decimal) error
	RecordSessionTrade(ctx context.Context, modelID int64, realizedPnL *decimal.Decimal, drawdownPct decimal.Decimal) error
	ListTradesSince(ctx context.Context, modelID int64, since time.Time) ([]*database.Trade, error)
	ListClosingTrades(ctx context.Context, modelID int64, limit int) ([]*database.Trade, error)
	CountTradesSince(ctx context.Context, modelID int64, since time.Time) (int, error)
	SumRealizedPnLBetween(ctx context.Context, modelID int64, from, to time.Time) (decimal.Decimal, error)
	CreateIncident(ctx context.Context, inc *database.Incident) error
}

// Engine applies risk profiles to models and tracks per-profile performance
// sessions
type Engine struct {
	store  store
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates the profile engine
func NewEngine(s store, logger zerolog.Logger) *Engine {
	return &Engine{store: s, logger: logger, now: time.Now}
}

// SeedPresets upserts the five system profiles. Run at startup before any
// model trades.
func (e *Engine) SeedPresets(ctx context.Context) error {
	for _, p := range Presets() {
		if err := e.store.SeedSystemProfile(ctx, p); err != nil {
			return fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
	}
	e.logger.Info().Int("count", len(Presets())).Msg("system risk profiles seeded")
	return nil
}

// Apply switches a model to the given profile: closes the open session with
// aggregates recomputed from the trade log, overwrites the profile-owned
// settings, opens a new session, and writes a PROFILE_CHANGE incident.
func (e *Engine) Apply(ctx context.Context, modelID, profileID int64) error {
	p, err := e.store.GetProfile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("profile %d: %w", profileID, err)
	}
	if _, err := e.store.GetModel(ctx, modelID); err != nil {
		return fmt.Errorf("model %d: %w", modelID, err)
	}

	now := e.now().UTC()

	if err := e.closeOpenSession(ctx, modelID, now); err != nil {
		return err
	}

	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return fmt.Errorf("settings for model %d: %w", modelID, err)
	}
	settings.MaxPositionSizePct = p.MaxPositionSizePct
	settings.MaxDailyLossPct = p.MaxDailyLossPct
	settings.MaxDailyTrades = p.MaxDailyTrades
	settings.MaxOpenPositions = p.MaxOpenPositions
	settings.MinCashReservePct = p.MinCashReservePct
	settings.MaxDrawdownPct = p.MaxDrawdownPct
	settings.ActiveProfileID = &p.ID
	if err := e.store.UpdateSettings(ctx, settings); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	if _, err := e.store.OpenSession(ctx, modelID, p.ID, now); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	inc := &database.Incident{
		ModelID:   &modelID,
		Type:      database.IncidentProfileChange,
		Severity:  database.SeverityLow,
		Message:   fmt.Sprintf("risk profile changed to %s", p.Name),
		Details:   map[string]any{"profile_id": p.ID, "profile_name": p.Name},
		Timestamp: now,
	}
	if err := e.store.CreateIncident(ctx, inc); err != nil {
		return fmt.Errorf("write incident: %w", err)
	}

	e.logger.Info().Int64("model_id", modelID).Str("profile", p.Name).Msg("profile applied")
	return nil
}

// closeOpenSession ends the model's running session, recomputing its
// aggregates from closing trades during the session window
func (e *Engine) closeOpenSession(ctx context.Context, modelID int64, end time.Time) error {
	session, err := e.store.GetOpenSession(ctx, modelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open session for model %d: %w", modelID, err)
	}

	trades, err := e.store.ListTradesSince(ctx, modelID, session.StartTime)
	if err != nil {
		return fmt.Errorf("trades for session %d: %w", session.ID, err)
	}

	var wins, losses, executed int
	totalPnL := decimal.Zero
	for _, t := range trades {
		if t.Timestamp.After(end) {
			continue
		}
		executed++
		if t.Side != database.TradeSideClose {
			continue
		}
		totalPnL = totalPnL.Add(t.RealizedPnL)
		if t.RealizedPnL.IsPositive() {
			wins++
		} else if t.RealizedPnL.IsNegative() {
			losses++
		}
	}

	err = e.store.CloseSession(ctx, session.ID, end, executed, wins, losses, totalPnL, session.MaxDrawdownPct)
	if err != nil {
		return fmt.Errorf("close session %d: %w", session.ID, err)
	}
	return nil
}

// RecordTrade folds an executed trade into the model's open session counters.
// realizedPnL is nil for opens.
func (e *Engine) RecordTrade(ctx context.Context, modelID int64, realizedPnL *decimal.Decimal, drawdownPct decimal.Decimal) error {
	return e.store.RecordSessionTrade(ctx, modelID, realizedPnL, drawdownPct)
}
