package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrDuplicatePending is returned when a pending decision already exists for
// the same (model, coin)
var ErrDuplicatePending = errors.New("pending decision already exists for model and coin")

// ErrNotPending is returned when a state transition is attempted on a row
// that is no longer in status=pending
var ErrNotPending = errors.New("decision is not pending")

// ============================================================================
// PENDING DECISIONS
// ============================================================================

// CreatePendingDecision inserts a pending decision. The partial unique index
// on (model_id, coin) WHERE status='pending' enforces at most one pending
// entry per coin; violations surface as ErrDuplicatePending.
func (r *Repository) CreatePendingDecision(ctx context.Context, pd *PendingDecision) error {
	explanation, err := json.Marshal(pd.Explanation)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}

	query := `
		INSERT INTO pending_decisions (
			model_id, coin, signal, quantity, leverage, entry_price, stop_loss,
			take_profit, confidence, justification, explanation, status, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', $12, $13)
		RETURNING id
	`
	err = r.db.Pool.QueryRow(
		ctx, query,
		pd.ModelID, pd.Coin, pd.Signal, pd.Quantity, pd.Leverage, pd.EntryPrice,
		pd.StopLoss, pd.TakeProfit, pd.Confidence, pd.Justification, explanation,
		pd.CreatedAt, pd.ExpiresAt,
	).Scan(&pd.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePending
		}
		return err
	}
	pd.Status = PendingStatusPending
	return nil
}

// GetPendingDecision retrieves a pending decision by id
func (r *Repository) GetPendingDecision(ctx context.Context, id int64) (*PendingDecision, error) {
	query := pendingSelect + ` WHERE id = $1`
	rows, err := r.db.Pool.Query(ctx, query, id)
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
	return scanPending(rows)
}

// ListPendingDecisions retrieves rows with status=pending ordered by
// created_at ascending. A zero modelID returns all models.
func (r *Repository) ListPendingDecisions(ctx context.Context, modelID int64) ([]*PendingDecision, error) {
	query := pendingSelect + ` WHERE status = 'pending'`
	args := []any{}
	if modelID != 0 {
		query += ` AND model_id = $1`
		args = append(args, modelID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*PendingDecision
	for rows.Next() {
		pd, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, pd)
	}
	return decisions, rows.Err()
}

// ResolvePendingDecision transitions a row out of status=pending. The WHERE
// guard makes the transition one-shot: resolving an already-resolved row
// returns ErrNotPending.
func (r *Repository) ResolvePendingDecision(
	ctx context.Context,
	id int64,
	newStatus string,
	note *string,
	resolvedQuantity *decimal.Decimal,
	resolvedLeverage *int,
) error {
	query := `
		UPDATE pending_decisions
		SET status = $2, resolved_at = NOW(), resolution_note = $3,
		    resolved_quantity = $4, resolved_leverage = $5
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, newStatus, note, resolvedQuantity, resolvedLeverage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetPendingDecision(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrNotPending
	}
	return nil
}

// MarkPendingExecuted moves an approved row to executed. Used by the queue
// after the executor confirms the fill.
func (r *Repository) MarkPendingExecuted(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE pending_decisions SET status = 'executed' WHERE id = $1 AND status = 'approved'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkApprovedRejected moves an approved row back to rejected after a failed
// approval-time risk re-check or execution failure.
func (r *Repository) MarkApprovedRejected(ctx context.Context, id int64, note string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE pending_decisions SET status = 'rejected', resolution_note = $2 WHERE id = $1 AND status = 'approved'`,
		id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpirePendingDecisions transitions every pending row whose expires_at is
// strictly before now to status=expired, returning the affected ids.
func (r *Repository) ExpirePendingDecisions(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		UPDATE pending_decisions
		SET status = 'expired', resolved_at = $1
		WHERE status = 'pending' AND expires_at < $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const pendingSelect = `
	SELECT id, model_id, coin, signal, quantity, leverage, entry_price, stop_loss,
	       take_profit, confidence, justification, explanation, status, created_at,
	       expires_at, resolved_at, resolution_note, resolved_quantity, resolved_leverage
	FROM pending_decisions`

func scanPending(rows pgx.Rows) (*PendingDecision, error) {
	pd := &PendingDecision{}
	var explanation []byte
	err := rows.Scan(
		&pd.ID, &pd.ModelID, &pd.Coin, &pd.Signal, &pd.Quantity, &pd.Leverage,
		&pd.EntryPrice, &pd.StopLoss, &pd.TakeProfit, &pd.Confidence,
		&pd.Justification, &explanation, &pd.Status, &pd.CreatedAt,
		&pd.ExpiresAt, &pd.ResolvedAt, &pd.ResolutionNote,
		&pd.ResolvedQuantity, &pd.ResolvedLeverage,
	)
	if err != nil {
		return nil, err
	}
	if len(explanation) > 0 {
		if err := json.Unmarshal(explanation, &pd.Explanation); err != nil {
			return nil, fmt.Errorf("unmarshal explanation: %w", err)
		}
	}
	return pd, nil
}
