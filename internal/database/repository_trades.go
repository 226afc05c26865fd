package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// TRADES
// ============================================================================

// CreateTrade inserts a trade log entry
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (model_id, coin, side, quantity, price, fee, realized_pnl, exchange_order_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.ModelID, trade.Coin, trade.Side, trade.Quantity, trade.Price,
		trade.Fee, trade.RealizedPnL, trade.ExchangeOrderID, trade.Timestamp,
	).Scan(&trade.ID)
}

// ListTrades retrieves the most recent trades for a model, newest first
func (r *Repository) ListTrades(ctx context.Context, modelID int64, limit int) ([]*Trade, error) {
	query := `
		SELECT id, model_id, coin, side, quantity, price, fee, realized_pnl, exchange_order_id, timestamp
		FROM trades
		WHERE model_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	return r.queryTrades(ctx, query, modelID, limit)
}

// ListTradesSince retrieves trades for a model at or after the given time,
// oldest first
func (r *Repository) ListTradesSince(ctx context.Context, modelID int64, since time.Time) ([]*Trade, error) {
	query := `
		SELECT id, model_id, coin, side, quantity, price, fee, realized_pnl, exchange_order_id, timestamp
		FROM trades
		WHERE model_id = $1 AND timestamp >= $2
		ORDER BY timestamp, id
	`
	return r.queryTrades(ctx, query, modelID, since)
}

// ListClosingTrades retrieves the most recent closing trades (those carrying
// realized pnl) for a model, newest first
func (r *Repository) ListClosingTrades(ctx context.Context, modelID int64, limit int) ([]*Trade, error) {
	query := `
		SELECT id, model_id, coin, side, quantity, price, fee, realized_pnl, exchange_order_id, timestamp
		FROM trades
		WHERE model_id = $1 AND side = 'close'
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	return r.queryTrades(ctx, query, modelID, limit)
}

// CountTradesSince counts trades for a model at or after the given time
func (r *Repository) CountTradesSince(ctx context.Context, modelID int64, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE model_id = $1 AND timestamp >= $2`,
		modelID, since).Scan(&count)
	return count, err
}

// SumRealizedPnLBetween sums realized pnl for a model over [from, to)
func (r *Repository) SumRealizedPnLBetween(ctx context.Context, modelID int64, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM trades
		 WHERE model_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		modelID, from, to).Scan(&sum)
	return sum, err
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...any) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade := &Trade{}
		err := rows.Scan(
			&trade.ID, &trade.ModelID, &trade.Coin, &trade.Side, &trade.Quantity,
			&trade.Price, &trade.Fee, &trade.RealizedPnL, &trade.ExchangeOrderID,
			&trade.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// ============================================================================
// POSITIONS
// ============================================================================

// GetPosition retrieves the open position for (model, coin, side), or
// ErrNotFound when none exists
func (r *Repository) GetPosition(ctx context.Context, modelID int64, coin, side string) (*Position, error) {
	query := `
		SELECT id, model_id, coin, side, quantity, avg_entry_price, stop_loss, take_profit, opened_at, updated_at
		FROM positions
		WHERE model_id = $1 AND coin = $2 AND side = $3
	`
	p := &Position{}
	err := r.db.Pool.QueryRow(ctx, query, modelID, coin, side).Scan(
		&p.ID, &p.ModelID, &p.Coin, &p.Side, &p.Quantity, &p.AvgEntryPrice,
		&p.StopLoss, &p.TakeProfit, &p.OpenedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPositions retrieves all open positions for a model ordered by coin
func (r *Repository) ListPositions(ctx context.Context, modelID int64) ([]*Position, error) {
	query := `
		SELECT id, model_id, coin, side, quantity, avg_entry_price, stop_loss, take_profit, opened_at, updated_at
		FROM positions
		WHERE model_id = $1
		ORDER BY coin, side
	`
	rows, err := r.db.Pool.Query(ctx, query, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		p := &Position{}
		err := rows.Scan(
			&p.ID, &p.ModelID, &p.Coin, &p.Side, &p.Quantity, &p.AvgEntryPrice,
			&p.StopLoss, &p.TakeProfit, &p.OpenedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ExecutionRecord is the atomic bookkeeping unit for a fill: the trade log
// entry, the resulting position state, and the model's new cash balance. A
// nil Position together with a non-empty RemoveCoin deletes the position row
// (net quantity reached zero).
type ExecutionRecord struct {
	Trade      *Trade
	Position   *Position
	RemoveCoin string
	RemoveSide string
	NewCash    decimal.Decimal
}

// ApplyExecution applies a fill atomically: appends the trade, upserts or
// deletes the position, and updates the model's cash. This is the only write
// path for executed trades.
func (r *Repository) ApplyExecution(ctx context.Context, rec *ExecutionRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin execution: %w", err)
	}
	defer tx.Rollback(ctx)

	tradeQuery := `
		INSERT INTO trades (model_id, coin, side, quantity, price, fee, realized_pnl, exchange_order_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	t := rec.Trade
	err = tx.QueryRow(
		ctx, tradeQuery,
		t.ModelID, t.Coin, t.Side, t.Quantity, t.Price, t.Fee, t.RealizedPnL,
		t.ExchangeOrderID, t.Timestamp,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	switch {
	case rec.Position != nil:
		p := rec.Position
		posQuery := `
			INSERT INTO positions (model_id, coin, side, quantity, avg_entry_price, stop_loss, take_profit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (model_id, coin, side) DO UPDATE
			SET quantity = EXCLUDED.quantity,
			    avg_entry_price = EXCLUDED.avg_entry_price,
			    stop_loss = EXCLUDED.stop_loss,
			    take_profit = EXCLUDED.take_profit,
			    updated_at = NOW()
		`
		_, err = tx.Exec(ctx, posQuery,
			p.ModelID, p.Coin, p.Side, p.Quantity, p.AvgEntryPrice, p.StopLoss, p.TakeProfit)
		if err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}
	case rec.RemoveCoin != "":
		_, err = tx.Exec(ctx,
			`DELETE FROM positions WHERE model_id = $1 AND coin = $2 AND side = $3`,
			t.ModelID, rec.RemoveCoin, rec.RemoveSide)
		if err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE models SET cash = $2, updated_at = NOW() WHERE id = $1`,
		t.ModelID, rec.NewCash)
	if err != nil {
		return fmt.Errorf("update cash: %w", err)
	}

	return tx.Commit(ctx)
}
