package engine

import (
	"context"
	"time"

	"trading-orchestrator/internal/database"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface one trading cycle needs. Implemented by
// *database.Repository; narrowed here so tests can substitute a fake.
type Store interface {
	GetModel(ctx context.Context, id int64) (*database.Model, error)
	GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error)
	UpdateModelAutomation(ctx context.Context, id int64, automation string) error
	UpdateModelStatus(ctx context.Context, id int64, status string) error

	ListPositions(ctx context.Context, modelID int64) ([]*database.Position, error)
	ListTrades(ctx context.Context, modelID int64, limit int) ([]*database.Trade, error)
	ListClosingTrades(ctx context.Context, modelID int64, limit int) ([]*database.Trade, error)
	CountTradesSince(ctx context.Context, modelID int64, since time.Time) (int, error)
	SumRealizedPnLBetween(ctx context.Context, modelID int64, from, to time.Time) (decimal.Decimal, error)

	ApplyExecution(ctx context.Context, rec *database.ExecutionRecord) error
	CreatePendingDecision(ctx context.Context, pd *database.PendingDecision) error
	CreateIncident(ctx context.Context, inc *database.Incident) error
}

var _ Store = (*database.Repository)(nil)
