package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// MODELS
// ============================================================================

// CreateModel inserts a new model together with its default settings. The
// defaults are the Balanced preset values; ProfileEngine.Apply attaches an
// actual profile afterwards.
func (r *Repository) CreateModel(ctx context.Context, m *Model) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create model: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO models (name, provider, ai_model, initial_capital, cash, status, environment, automation, exchange_env)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8)
		RETURNING id, cash, created_at, updated_at
	`
	err = tx.QueryRow(
		ctx, query,
		m.Name, m.Provider, m.AIModel, m.InitialCapital,
		m.Status, m.Environment, m.Automation, m.ExchangeEnv,
	).Scan(&m.ID, &m.Cash, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}

	settingsQuery := `
		INSERT INTO model_settings (
			model_id, max_position_size_pct, max_daily_loss_pct, max_daily_trades,
			max_open_positions, min_cash_reserve_pct, max_drawdown_pct
		)
		VALUES ($1, 10, 3, 20, 5, 20, 15)
	`
	if _, err := tx.Exec(ctx, settingsQuery, m.ID); err != nil {
		return fmt.Errorf("insert default settings: %w", err)
	}

	return tx.Commit(ctx)
}

// GetModel retrieves a model by id
func (r *Repository) GetModel(ctx context.Context, id int64) (*Model, error) {
	query := `
		SELECT id, name, provider, ai_model, initial_capital, cash, status,
		       environment, automation, exchange_env, created_at, updated_at
		FROM models
		WHERE id = $1
	`
	m := &Model{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Provider, &m.AIModel, &m.InitialCapital, &m.Cash,
		&m.Status, &m.Environment, &m.Automation, &m.ExchangeEnv,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListModels retrieves all models ordered by id
func (r *Repository) ListModels(ctx context.Context) ([]*Model, error) {
	query := `
		SELECT id, name, provider, ai_model, initial_capital, cash, status,
		       environment, automation, exchange_env, created_at, updated_at
		FROM models
		ORDER BY id
	`
	return r.queryModels(ctx, query)
}

// ListActiveModels retrieves models with status=active ordered by id
func (r *Repository) ListActiveModels(ctx context.Context) ([]*Model, error) {
	query := `
		SELECT id, name, provider, ai_model, initial_capital, cash, status,
		       environment, automation, exchange_env, created_at, updated_at
		FROM models
		WHERE status = 'active'
		ORDER BY id
	`
	return r.queryModels(ctx, query)
}

func (r *Repository) queryModels(ctx context.Context, query string, args ...any) ([]*Model, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		m := &Model{}
		err := rows.Scan(
			&m.ID, &m.Name, &m.Provider, &m.AIModel, &m.InitialCapital, &m.Cash,
			&m.Status, &m.Environment, &m.Automation, &m.ExchangeEnv,
			&m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// UpdateModelStatus sets a model's status (active/paused)
func (r *Repository) UpdateModelStatus(ctx context.Context, id int64, status string) error {
	return r.updateModelField(ctx, id, "status", status)
}

// UpdateModelEnvironment sets a model's trading environment (simulation/live)
func (r *Repository) UpdateModelEnvironment(ctx context.Context, id int64, environment string) error {
	return r.updateModelField(ctx, id, "environment", environment)
}

// UpdateModelAutomation sets a model's automation level (manual/semi/full)
func (r *Repository) UpdateModelAutomation(ctx context.Context, id int64, automation string) error {
	return r.updateModelField(ctx, id, "automation", automation)
}

// UpdateModelExchangeEnv sets a model's exchange environment (testnet/mainnet)
func (r *Repository) UpdateModelExchangeEnv(ctx context.Context, id int64, env string) error {
	return r.updateModelField(ctx, id, "exchange_env", env)
}

func (r *Repository) updateModelField(ctx context.Context, id int64, field, value string) error {
	query := fmt.Sprintf(`UPDATE models SET %s = $2, updated_at = NOW() WHERE id = $1`, field)
	tag, err := r.db.Pool.Exec(ctx, query, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateModelCash overwrites a model's cash balance
func (r *Repository) UpdateModelCash(ctx context.Context, id int64, cash decimal.Decimal) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE models SET cash = $2, updated_at = NOW() WHERE id = $1`, id, cash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// MODEL SETTINGS
// ============================================================================

// GetSettings retrieves the settings row for a model
func (r *Repository) GetSettings(ctx context.Context, modelID int64) (*ModelSettings, error) {
	query := `
		SELECT model_id, max_position_size_pct, max_daily_loss_pct, max_daily_trades,
		       max_open_positions, min_cash_reserve_pct, max_drawdown_pct,
		       trading_interval_minutes, fee_rate, auto_pause_enabled,
		       auto_pause_consecutive_losses, auto_pause_win_rate_threshold,
		       ai_temperature, notify_min_severity, active_profile_id, updated_at
		FROM model_settings
		WHERE model_id = $1
	`
	s := &ModelSettings{}
	err := r.db.Pool.QueryRow(ctx, query, modelID).Scan(
		&s.ModelID, &s.MaxPositionSizePct, &s.MaxDailyLossPct, &s.MaxDailyTrades,
		&s.MaxOpenPositions, &s.MinCashReservePct, &s.MaxDrawdownPct,
		&s.TradingIntervalMinutes, &s.FeeRate, &s.AutoPauseEnabled,
		&s.AutoPauseConsecutiveLosses, &s.AutoPauseWinRateThreshold,
		&s.AITemperature, &s.NotifyMinSeverity, &s.ActiveProfileID, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSettings overwrites the settings row for a model
func (r *Repository) UpdateSettings(ctx context.Context, s *ModelSettings) error {
	query := `
		UPDATE model_settings
		SET max_position_size_pct = $2, max_daily_loss_pct = $3, max_daily_trades = $4,
		    max_open_positions = $5, min_cash_reserve_pct = $6, max_drawdown_pct = $7,
		    trading_interval_minutes = $8, fee_rate = $9, auto_pause_enabled = $10,
		    auto_pause_consecutive_losses = $11, auto_pause_win_rate_threshold = $12,
		    ai_temperature = $13, notify_min_severity = $14, active_profile_id = $15,
		    updated_at = NOW()
		WHERE model_id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		s.ModelID, s.MaxPositionSizePct, s.MaxDailyLossPct, s.MaxDailyTrades,
		s.MaxOpenPositions, s.MinCashReservePct, s.MaxDrawdownPct,
		s.TradingIntervalMinutes, s.FeeRate, s.AutoPauseEnabled,
		s.AutoPauseConsecutiveLosses, s.AutoPauseWinRateThreshold,
		s.AITemperature, s.NotifyMinSeverity, s.ActiveProfileID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// PROVIDERS
// ============================================================================

// CreateProvider inserts an AI provider reference
func (r *Repository) CreateProvider(ctx context.Context, p *Provider) error {
	query := `
		INSERT INTO providers (name, kind, default_model)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET kind = EXCLUDED.kind, default_model = EXCLUDED.default_model
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query, p.Name, p.Kind, p.DefaultModel).
		Scan(&p.ID, &p.CreatedAt)
}

// ListProviders retrieves all AI provider references
func (r *Repository) ListProviders(ctx context.Context) ([]*Provider, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, kind, default_model, created_at FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*Provider
	for rows.Next() {
		p := &Provider{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.DefaultModel, &p.CreatedAt); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
