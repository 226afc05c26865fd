package database

import (
	"context"
	"fmt"
	"time"

	"trading-orchestrator/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			kind VARCHAR(20) NOT NULL,
			default_model VARCHAR(100) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS models (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			provider VARCHAR(20) NOT NULL,
			ai_model VARCHAR(100) NOT NULL,
			initial_capital DECIMAL(20, 8) NOT NULL,
			cash DECIMAL(20, 8) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'paused',
			environment VARCHAR(10) NOT NULL DEFAULT 'simulation',
			automation VARCHAR(10) NOT NULL DEFAULT 'manual',
			exchange_env VARCHAR(10) NOT NULL DEFAULT 'testnet',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS risk_profiles (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(50) NOT NULL UNIQUE,
			icon VARCHAR(16) NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			max_position_size_pct DECIMAL(10, 4) NOT NULL,
			max_daily_loss_pct DECIMAL(10, 4) NOT NULL,
			max_daily_trades INTEGER NOT NULL,
			max_open_positions INTEGER NOT NULL,
			min_cash_reserve_pct DECIMAL(10, 4) NOT NULL,
			max_drawdown_pct DECIMAL(10, 4) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS model_settings (
			model_id BIGINT PRIMARY KEY REFERENCES models(id) ON DELETE CASCADE,
			max_position_size_pct DECIMAL(10, 4) NOT NULL,
			max_daily_loss_pct DECIMAL(10, 4) NOT NULL,
			max_daily_trades INTEGER NOT NULL,
			max_open_positions INTEGER NOT NULL,
			min_cash_reserve_pct DECIMAL(10, 4) NOT NULL,
			max_drawdown_pct DECIMAL(10, 4) NOT NULL,
			trading_interval_minutes INTEGER NOT NULL DEFAULT 60,
			fee_rate DECIMAL(10, 6) NOT NULL DEFAULT 0.001,
			auto_pause_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			auto_pause_consecutive_losses INTEGER NOT NULL DEFAULT 3,
			auto_pause_win_rate_threshold DECIMAL(10, 4) NOT NULL DEFAULT 30,
			ai_temperature DOUBLE PRECISION NOT NULL DEFAULT 0.3,
			notify_min_severity VARCHAR(10) NOT NULL DEFAULT 'high',
			active_profile_id BIGINT REFERENCES risk_profiles(id),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS profile_sessions (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			profile_id BIGINT NOT NULL REFERENCES risk_profiles(id),
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			trades_executed INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			total_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			max_drawdown_pct DECIMAL(10, 4) NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_sessions_open
			ON profile_sessions(model_id) WHERE end_time IS NULL`,

		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			coin VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			fee DECIMAL(20, 8) NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			exchange_order_id VARCHAR(64),
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_model_time ON trades(model_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_model_coin ON trades(model_id, coin)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			coin VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			avg_entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (model_id, coin, side)
		)`,

		`CREATE TABLE IF NOT EXISTS pending_decisions (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			coin VARCHAR(20) NOT NULL,
			signal VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			leverage INTEGER NOT NULL DEFAULT 1,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			justification TEXT NOT NULL DEFAULT '',
			explanation JSONB,
			status VARCHAR(10) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			resolution_note TEXT,
			resolved_quantity DECIMAL(20, 8),
			resolved_leverage INTEGER
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_one_per_coin
			ON pending_decisions(model_id, coin) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_decisions(status, expires_at)`,

		`CREATE TABLE IF NOT EXISTS incidents (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT REFERENCES models(id) ON DELETE SET NULL,
			incident_type VARCHAR(30) NOT NULL,
			severity VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			details JSONB,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_model_time ON incidents(model_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_type_time ON incidents(incident_type, timestamp)`,

		`CREATE TABLE IF NOT EXISTS exchange_credentials (
			id BIGSERIAL PRIMARY KEY,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			environment VARCHAR(10) NOT NULL,
			api_key_cipher BYTEA NOT NULL,
			secret_key_cipher BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (model_id, environment)
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info().Msg("database migrations complete")
	return nil
}
