package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrExpired is returned when the operator acts on a proposal whose deadline
// has already passed
var ErrExpired = errors.New("pending decision has expired")

// store is the slice of the repository the queue needs
type store interface {
	GetPendingDecision(ctx context.Context, id int64) (*database.PendingDecision, error)
	ListPendingDecisions(ctx context.Context, modelID int64) ([]*database.PendingDecision, error)
	ResolvePendingDecision(ctx context.Context, id int64, newStatus string, note *string, resolvedQuantity *decimal.Decimal, resolvedLeverage *int) error
	MarkPendingExecuted(ctx context.Context, id int64) error
	MarkApprovedRejected(ctx context.Context, id int64, note string) error
	ExpirePendingDecisions(ctx context.Context, now time.Time) ([]int64, error)
}

// Executor runs an approved proposal through risk re-check and execution. A
// nil error with a failed status means the proposal was turned away, not that
// the system broke. Implemented by *engine.Engine.
type Executor interface {
	ExecuteApproved(ctx context.Context, pd *database.PendingDecision) (*engine.ExecutionResult, error)
}

var _ Executor = (*engine.Engine)(nil)

// Modifications are the operator's optional adjustments at approval time
type Modifications struct {
	Quantity *decimal.Decimal
	Leverage *int
	Note     string
}

// Queue manages the semi-auto approval workflow: proposals created by the
// engine wait here until the operator approves, rejects, or lets them lapse.
type Queue struct {
	store  store
	exec   Executor
	bus    *events.Bus
	logger zerolog.Logger
	now    func() time.Time
}

// NewQueue creates the approval queue
func NewQueue(s store, exec Executor, bus *events.Bus, logger zerolog.Logger) *Queue {
	return &Queue{store: s, exec: exec, bus: bus, logger: logger, now: time.Now}
}

// Get retrieves one proposal
func (q *Queue) Get(ctx context.Context, id int64) (*database.PendingDecision, error) {
	return q.store.GetPendingDecision(ctx, id)
}

// List returns open proposals, oldest first. A zero modelID spans all models.
func (q *Queue) List(ctx context.Context, modelID int64) ([]*database.PendingDecision, error) {
	return q.store.ListPendingDecisions(ctx, modelID)
}

// Approve transitions the proposal to approved and hands it to the executor.
// A successful fill lands it on executed; a risk re-check denial or exchange
// failure lands it on rejected with the failure as the resolution note. The
// transition out of pending is one-shot.
func (q *Queue) Approve(ctx context.Context, id int64, mods *Modifications) (*database.PendingDecision, error) {
	pd, err := q.store.GetPendingDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if pd.Status != database.PendingStatusPending {
		return nil, database.ErrNotPending
	}

	now := q.now().UTC()
	if now.After(pd.ExpiresAt) {
		// The sweep has not caught it yet; expire it here rather than
		// executing a stale proposal
		q.markExpired(ctx, pd, now)
		return nil, ErrExpired
	}

	var note *string
	if mods != nil {
		if mods.Note != "" {
			note = &mods.Note
		}
		pd.ResolvedQuantity = mods.Quantity
		pd.ResolvedLeverage = mods.Leverage
	}

	err = q.store.ResolvePendingDecision(ctx, id, database.PendingStatusApproved, note, pd.ResolvedQuantity, pd.ResolvedLeverage)
	if err != nil {
		return nil, err
	}
	pd.Status = database.PendingStatusApproved
	pd.ResolvedAt = &now

	outcome, err := q.exec.ExecuteApproved(ctx, pd)
	if err != nil {
		failNote := fmt.Sprintf("execution error: %v", err)
		if markErr := q.store.MarkApprovedRejected(ctx, id, failNote); markErr != nil {
			q.logger.Error().Err(markErr).Int64("pending_id", id).Msg("failed to mark approved proposal rejected")
		}
		pd.Status = database.PendingStatusRejected
		q.bus.PublishPendingResolved(pd.ModelID, id, pd.Status)
		return pd, err
	}

	if outcome.Status == engine.StatusFailed {
		if markErr := q.store.MarkApprovedRejected(ctx, id, outcome.Reason); markErr != nil {
			q.logger.Error().Err(markErr).Int64("pending_id", id).Msg("failed to mark approved proposal rejected")
		}
		pd.Status = database.PendingStatusRejected
		pd.ResolutionNote = &outcome.Reason
	} else {
		if markErr := q.store.MarkPendingExecuted(ctx, id); markErr != nil {
			q.logger.Error().Err(markErr).Int64("pending_id", id).Msg("failed to mark approved proposal executed")
		}
		pd.Status = database.PendingStatusExecuted
	}

	q.bus.PublishPendingResolved(pd.ModelID, id, pd.Status)
	q.logger.Info().
		Int64("pending_id", id).
		Int64("model_id", pd.ModelID).
		Str("coin", pd.Coin).
		Str("status", pd.Status).
		Msg("pending decision approved")
	return pd, nil
}

// Reject transitions the proposal to rejected. One-shot.
func (q *Queue) Reject(ctx context.Context, id int64, note string) (*database.PendingDecision, error) {
	pd, err := q.store.GetPendingDecision(ctx, id)
	if err != nil {
		return nil, err
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	if err := q.store.ResolvePendingDecision(ctx, id, database.PendingStatusRejected, notePtr, nil, nil); err != nil {
		return nil, err
	}

	now := q.now().UTC()
	pd.Status = database.PendingStatusRejected
	pd.ResolvedAt = &now
	pd.ResolutionNote = notePtr

	q.bus.PublishPendingResolved(pd.ModelID, id, pd.Status)
	q.logger.Info().Int64("pending_id", id).Int64("model_id", pd.ModelID).Msg("pending decision rejected")
	return pd, nil
}

// ExpireSweep lapses every proposal past its deadline. Proposals expire on
// the sweep after the deadline, never mid-approval.
func (q *Queue) ExpireSweep(ctx context.Context) (int, error) {
	now := q.now().UTC()
	ids, err := q.store.ExpirePendingDecisions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire sweep: %w", err)
	}

	for _, id := range ids {
		pd, getErr := q.store.GetPendingDecision(ctx, id)
		if getErr != nil {
			q.logger.Error().Err(getErr).Int64("pending_id", id).Msg("expired proposal vanished")
			continue
		}
		q.bus.PublishPendingResolved(pd.ModelID, id, database.PendingStatusExpired)
	}

	if len(ids) > 0 {
		q.logger.Info().Int("count", len(ids)).Msg("pending decisions expired")
	}
	return len(ids), nil
}

func (q *Queue) markExpired(ctx context.Context, pd *database.PendingDecision, now time.Time) {
	err := q.store.ResolvePendingDecision(ctx, pd.ID, database.PendingStatusExpired, nil, nil, nil)
	if err != nil {
		q.logger.Error().Err(err).Int64("pending_id", pd.ID).Msg("failed to expire stale proposal")
		return
	}
	pd.Status = database.PendingStatusExpired
	pd.ResolvedAt = &now
	q.bus.PublishPendingResolved(pd.ModelID, pd.ID, database.PendingStatusExpired)
}
