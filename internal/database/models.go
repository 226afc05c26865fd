package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Model status values
const (
	ModelStatusActive = "active"
	ModelStatusPaused = "paused"
)

// Trading environment values
const (
	EnvSimulation = "simulation"
	EnvLive       = "live"
)

// Automation level values
const (
	AutomationManual = "manual"
	AutomationSemi   = "semi"
	AutomationFull   = "full"
)

// Exchange environment values
const (
	ExchangeTestnet = "testnet"
	ExchangeMainnet = "mainnet"
)

// Trade side values
const (
	TradeSideBuy   = "buy"
	TradeSideSell  = "sell"
	TradeSideClose = "close"
)

// Position side values
const (
	PositionLong  = "long"
	PositionShort = "short"
)

// Pending decision status values
const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusRejected = "rejected"
	PendingStatusExpired  = "expired"
	PendingStatusExecuted = "executed"
)

// Incident types
const (
	IncidentModeChange        = "MODE_CHANGE"
	IncidentEnvironmentChange = "ENVIRONMENT_CHANGE"
	IncidentAutomationChange  = "AUTOMATION_CHANGE"
	IncidentProfileChange     = "PROFILE_CHANGE"
	IncidentTradeRejected     = "TRADE_REJECTED"
	IncidentAutoPause         = "AUTO_PAUSE"
	IncidentEmergencyPause    = "EMERGENCY_PAUSE"
	IncidentEmergencyStopAll  = "EMERGENCY_STOP_ALL"
	IncidentExecutionError    = "EXECUTION_ERROR"
	IncidentAPIError          = "API_ERROR"
	IncidentSystemInit        = "SYSTEM_INIT"
)

// Incident severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Model is the unit of trading: an AI decision source paired with a risk
// profile and its own capital allocation.
type Model struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Provider       string          `json:"provider"` // claude, openai, deepseek
	AIModel        string          `json:"ai_model"` // provider-specific model identifier
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Cash           decimal.Decimal `json:"cash"`
	Status         string          `json:"status"`      // active, paused
	Environment    string          `json:"environment"` // simulation, live
	Automation     string          `json:"automation"`  // manual, semi, full
	ExchangeEnv    string          `json:"exchange_env"` // testnet, mainnet
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

/// ModelSettings holds the per-model risk parameters and toggles (1:1 with Model)
type ModelSettings struct {
	ModelID                    int64           `json:"model_id"`
	MaxPositionSizePct         decimal.Decimal `json:"max_position_size_pct"`
	MaxDailyLossPct            decimal.Decimal `json:"max_daily_loss_pct"`
	MaxDailyTrades             int             `json:"max_daily_trades"`
	MaxOpenPositions           int             `json:"max_open_positions"`
	MinCashReservePct          decimal.Decimal `json:"min_cash_reserve_pct"`
	MaxDrawdownPct             decimal.Decimal `json:"max_drawdown_pct"`
	TradingIntervalMinutes     int             `json:"trading_interval_minutes"`
	FeeRate                    decimal.Decimal `json:"fee_rate"` // e.g. 0.001 for 0.1%
	AutoPauseEnabled           bool            `json:"auto_pause_enabled"`
	AutoPauseConsecutiveLosses int             `json:"auto_pause_consecutive_losses"`
	AutoPauseWinRateThreshold  decimal.Decimal `json:"auto_pause_win_rate_threshold"` // percent over last 10 closes
	AITemperature              float64         `json:"ai_temperature"`
	NotifyMinSeverity          string          `json:"notify_min_severity"` // empty disables notifications
	ActiveProfileID            *int64          `json:"active_profile_id"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// RiskProfile is a named preset of risk parameters. System profiles are
// immutable and cannot be deleted.
type RiskProfile struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Icon               string          `json:"icon"`
	Description        string          `json:"description"`
	IsSystem           bool            `json:"is_system"`
	MaxPositionSizePct decimal.Decimal `json:"max_position_size_pct"`
	MaxDailyLossPct    decimal.Decimal `json:"max_daily_loss_pct"`
	MaxDailyTrades     int             `json:"max_daily_trades"`
	MaxOpenPositions   int             `json:"max_open_positions"`
	MinCashReservePct  decimal.Decimal `json:"min_cash_reserve_pct"`
	MaxDrawdownPct     decimal.Decimal `json:"max_drawdown_pct"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ProfileSession attributes realized results to whichever profile was active.
// At most one open session (EndTime == nil) exists per model.
type ProfileSession struct {
	ID             int64            `json:"id"`
	ModelID        int64            `json:"model_id"`
	ProfileID      int64            `json:"profile_id"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time"`
	TradesExecuted int              `json:"trades_executed"`
	Wins           int              `json:"wins"`
	Losses         int              `json:"losses"`
	TotalPnL       decimal.Decimal  `json:"total_pnl"`
	MaxDrawdownPct decimal.Decimal  `json:"max_drawdown_pct"`
}

// Trade is an immutable log entry. RealizedPnL is zero for opens and carries
// the realized result for closes.
type Trade struct {
	ID              int64           `json:"id"`
	ModelID         int64           `json:"model_id"`
	Coin            string          `json:"coin"`
	Side            string          `json:"side"` // buy, sell, close
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fee             decimal.Decimal `json:"fee"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	ExchangeOrderID *string         `json:"exchange_order_id"` // set only for live executions
	Timestamp       time.Time       `json:"timestamp"`
}

// Position is the current open exposure for (model, coin, side). It exists
// iff net quantity is strictly positive.
type Position struct {
	ID            int64            `json:"id"`
	ModelID       int64            `json:"model_id"`
	Coin          string           `json:"coin"`
	Side          string           `json:"side"` // long, short
	Quantity      decimal.Decimal  `json:"quantity"`
	AvgEntryPrice decimal.Decimal  `json:"avg_entry_price"`
	StopLoss      *decimal.Decimal `json:"stop_loss"`
	TakeProfit    *decimal.Decimal `json:"take_profit"`
	OpenedAt      time.Time        `json:"opened_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// PendingDecision is a proposed trade awaiting human action.
type PendingDecision struct {
	ID               int64            `json:"id"`
	ModelID          int64            `json:"model_id"`
	Coin             string           `json:"coin"`
	Signal           string           `json:"signal"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Leverage         int              `json:"leverage"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	StopLoss         *decimal.Decimal `json:"stop_loss"`
	TakeProfit       *decimal.Decimal `json:"take_profit"`
	Confidence       float64          `json:"confidence"`
	Justification    string           `json:"justification"`
	Explanation      map[string]any   `json:"explanation"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	ResolvedAt       *time.Time       `json:"resolved_at"`
	ResolutionNote   *string          `json:"resolution_note"`
	ResolvedQuantity *decimal.Decimal `json:"resolved_quantity"`
	ResolvedLeverage *int             `json:"resolved_leverage"`
}

// Incident is an append-only audit record. ModelID is nil for system-wide
// incidents.
type Incident struct {
	ID        int64          `json:"id"`
	ModelID   *int64         `json:"model_id"`
	Type      string         `json:"incident_type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Resolved  bool           `json:"resolved"`
	Timestamp time.Time      `json:"timestamp"`
}

// Provider references an AI decision source configuration.
type Provider struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"` // claude, openai, deepseek
	DefaultModel string    `json:"default_model"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExchangeCredential stores per-model exchange API keys, keyed by exchange
// environment. Key material is opaque ciphertext; the secrets package owns
// encryption and decryption.
type ExchangeCredential struct {
	ID              int64     `json:"id"`
	ModelID         int64     `json:"model_id"`
	Environment     string    `json:"environment"` // testnet, mainnet
	APIKeyCipher    []byte    `json:"-"`
	SecretKeyCipher []byte    `json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
}
