package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrSystemProfile is returned when a delete or update targets a built-in
// profile
var ErrSystemProfile = errors.New("system profiles cannot be modified")

// ============================================================================
// RISK PROFILES
// ============================================================================

const profileSelect = `
	SELECT id, name, icon, description, is_system, max_position_size_pct,
	       max_daily_loss_pct, max_daily_trades, max_open_positions,
	       min_cash_reserve_pct, max_drawdown_pct, created_at
	FROM risk_profiles`

// GetProfile retrieves a risk profile by id
func (r *Repository) GetProfile(ctx context.Context, id int64) (*RiskProfile, error) {
	rows, err := r.db.Pool.Query(ctx, profileSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanProfile(rows)
}

// GetProfileByName retrieves a risk profile by its unique name
func (r *Repository) GetProfileByName(ctx context.Context, name string) (*RiskProfile, error) {
	rows, err := r.db.Pool.Query(ctx, profileSelect+` WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanProfile(rows)
}

// ListProfiles retrieves all risk profiles, system presets first
func (r *Repository) ListProfiles(ctx context.Context) ([]*RiskProfile, error) {
	rows, err := r.db.Pool.Query(ctx, profileSelect+` ORDER BY is_system DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*RiskProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CreateProfile inserts a custom (non-system) risk profile
func (r *Repository) CreateProfile(ctx context.Context, p *RiskProfile) error {
	query := `
		INSERT INTO risk_profiles (
			name, icon, description, is_system, max_position_size_pct,
			max_daily_loss_pct, max_daily_trades, max_open_positions,
			min_cash_reserve_pct, max_drawdown_pct
		)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.Name, p.Icon, p.Description, p.MaxPositionSizePct, p.MaxDailyLossPct,
		p.MaxDailyTrades, p.MaxOpenPositions, p.MinCashReservePct, p.MaxDrawdownPct,
	).Scan(&p.ID, &p.CreatedAt)
}

// DeleteProfile removes a custom profile. System presets are protected.
func (r *Repository) DeleteProfile(ctx context.Context, id int64) error {
	p, err := r.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if p.IsSystem {
		return ErrSystemProfile
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM risk_profiles WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedSystemProfile upserts a built-in preset by name, keeping its parameters
// current across restarts without disturbing user references to it.
func (r *Repository) SeedSystemProfile(ctx context.Context, p *RiskProfile) error {
	query := `
		INSERT INTO risk_profiles (
			name, icon, description, is_system, max_position_size_pct,
			max_daily_loss_pct, max_daily_trades, max_open_positions,
			min_cash_reserve_pct, max_drawdown_pct
		)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE
		SET icon = EXCLUDED.icon,
		    description = EXCLUDED.description,
		    is_system = TRUE,
		    max_position_size_pct = EXCLUDED.max_position_size_pct,
		    max_daily_loss_pct = EXCLUDED.max_daily_loss_pct,
		    max_daily_trades = EXCLUDED.max_daily_trades,
		    max_open_positions = EXCLUDED.max_open_positions,
		    min_cash_reserve_pct = EXCLUDED.min_cash_reserve_pct,
		    max_drawdown_pct = EXCLUDED.max_drawdown_pct
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.Name, p.Icon, p.Description, p.MaxPositionSizePct, p.MaxDailyLossPct,
		p.MaxDailyTrades, p.MaxOpenPositions, p.MinCashReservePct, p.MaxDrawdownPct,
	).Scan(&p.ID, &p.CreatedAt)
}

func scanProfile(rows pgx.Rows) (*RiskProfile, error) {
	p := &RiskProfile{}
	err := rows.Scan(
		&p.ID, &p.Name, &p.Icon, &p.Description, &p.IsSystem,
		&p.MaxPositionSizePct, &p.MaxDailyLossPct, &p.MaxDailyTrades,
		&p.MaxOpenPositions, &p.MinCashReservePct, &p.MaxDrawdownPct,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ============================================================================
// PROFILE SESSIONS
// ============================================================================

// GetOpenSession retrieves the current open session for a model, or
// ErrNotFound when no profile session is running
func (r *Repository) GetOpenSession(ctx context.Context, modelID int64) (*ProfileSession, error) {
	query := `
		SELECT id, model_id, profile_id, start_time, end_time, trades_executed,
		       wins, losses, total_pnl, max_drawdown_pct
		FROM profile_sessions
		WHERE model_id = $1 AND end_time IS NULL
	`
	s := &ProfileSession{}
	err := r.db.Pool.QueryRow(ctx, query, modelID).Scan(
		&s.ID, &s.ModelID, &s.ProfileID, &s.StartTime, &s.EndTime,
		&s.TradesExecuted, &s.Wins, &s.Losses, &s.TotalPnL, &s.MaxDrawdownPct,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions retrieves a model's profile sessions, newest first
func (r *Repository) ListSessions(ctx context.Context, modelID int64, limit int) ([]*ProfileSession, error) {
	query := `
		SELECT id, model_id, profile_id, start_time, end_time, trades_executed,
		       wins, losses, total_pnl, max_drawdown_pct
		FROM profile_sessions
		WHERE model_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, modelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ProfileSession
	for rows.Next() {
		s := &ProfileSession{}
		err := rows.Scan(
			&s.ID, &s.ModelID, &s.ProfileID, &s.StartTime, &s.EndTime,
			&s.TradesExecuted, &s.Wins, &s.Losses, &s.TotalPnL, &s.MaxDrawdownPct,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// OpenSession closes any running session for the model and starts a new one
// for the given profile, atomically. The partial unique index on open
// sessions backs this up at the database level.
func (r *Repository) OpenSession(ctx context.Context, modelID, profileID int64, now time.Time) (*ProfileSession, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin open session: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE profile_sessions SET end_time = $2 WHERE model_id = $1 AND end_time IS NULL`,
		modelID, now)
	if err != nil {
		return nil, fmt.Errorf("close previous session: %w", err)
	}

	s := &ProfileSession{ModelID: modelID, ProfileID: profileID, StartTime: now}
	err = tx.QueryRow(ctx,
		`INSERT INTO profile_sessions (model_id, profile_id, start_time) VALUES ($1, $2, $3) RETURNING id`,
		modelID, profileID, now).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// CloseSession ends a session and writes its final aggregates, recomputed
// from the trade log by the caller
func (r *Repository) CloseSession(ctx context.Context, sessionID int64, end time.Time, trades, wins, losses int, totalPnL, maxDrawdownPct decimal.Decimal) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE profile_sessions
		SET end_time = $2, trades_executed = $3, wins = $4, losses = $5,
		    total_pnl = $6, max_drawdown_pct = $7
		WHERE id = $1 AND end_time IS NULL
	`, sessionID, end, trades, wins, losses, totalPnL, maxDrawdownPct)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseOpenSession ends the running session for a model, if any. Returns
// ErrNotFound when no session is open.
func (r *Repository) CloseOpenSession(ctx context.Context, modelID int64, now time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE profile_sessions SET end_time = $2 WHERE model_id = $1 AND end_time IS NULL`,
		modelID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSessionTrade folds a closed trade's result into the model's open
// session aggregates. Opens (pnl unset) only bump the trade counter. A no-op
// when no session is open.
func (r *Repository) RecordSessionTrade(ctx context.Context, modelID int64, realizedPnL *decimal.Decimal, drawdownPct decimal.Decimal) error {
	if realizedPnL == nil {
		_, err := r.db.Pool.Exec(ctx, `
			UPDATE profile_sessions
			SET trades_executed = trades_executed + 1
			WHERE model_id = $1 AND end_time IS NULL
		`, modelID)
		return err
	}

	win := realizedPnL.IsPositive()
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE profile_sessions
		SET trades_executed = trades_executed + 1,
		    wins = wins + CASE WHEN $2 THEN 1 ELSE 0 END,
		    losses = losses + CASE WHEN $2 THEN 0 ELSE 1 END,
		    total_pnl = total_pnl + $3,
		    max_drawdown_pct = GREATEST(max_drawdown_pct, $4)
		WHERE model_id = $1 AND end_time IS NULL
	`, modelID, win, *realizedPnL, drawdownPct)
	return err
}
