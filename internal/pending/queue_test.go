package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"

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

type fakeStore struct {
	decisions map[int64]*database.PendingDecision
}

func newFakeStore(pds ...*database.PendingDecision) *fakeStore {
	f := &fakeStore{decisions: make(map[int64]*database.PendingDecision)}
	for _, pd := range pds {
		f.decisions[pd.ID] = pd
	}
	return f
}

func (f *fakeStore) GetPendingDecision(ctx context.Context, id int64) (*database.PendingDecision, error) {
	pd, ok := f.decisions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *pd
	return &cp, nil
}

func (f *fakeStore) ListPendingDecisions(ctx context.Context, modelID int64) ([]*database.PendingDecision, error) {
	var out []*database.PendingDecision
	for _, pd := range f.decisions {
		if pd.Status != database.PendingStatusPending {
			continue
		}
		if modelID != 0 && pd.ModelID != modelID {
			continue
		}
		out = append(out, pd)
	}
	return out, nil
}

func (f *fakeStore) ResolvePendingDecision(ctx context.Context, id int64, newStatus string, note *string, resolvedQuantity *decimal.Decimal, resolvedLeverage *int) error {
	pd, ok := f.decisions[id]
	if !ok {
		return database.ErrNotFound
	}
	if pd.Status != database.PendingStatusPending {
		return database.ErrNotPending
	}
	pd.Status = newStatus
	pd.ResolutionNote = note
	pd.ResolvedQuantity = resolvedQuantity
	pd.ResolvedLeverage = resolvedLeverage
	return nil
}

func (f *fakeStore) MarkPendingExecuted(ctx context.Context, id int64) error {
	pd, ok := f.decisions[id]
	if !ok {
		return database.ErrNotFound
	}
	pd.Status = database.PendingStatusExecuted
	return nil
}

func (f *fakeStore) MarkApprovedRejected(ctx context.Context, id int64, note string) error {
	pd, ok := f.decisions[id]
	if !ok {
		return database.ErrNotFound
	}
	pd.Status = database.PendingStatusRejected
	pd.ResolutionNote = &note
	return nil
}

func (f *fakeStore) ExpirePendingDecisions(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for _, pd := range f.decisions {
		if pd.Status == database.PendingStatusPending && pd.ExpiresAt.Before(now) {
			pd.Status = database.PendingStatusExpired
			ids = append(ids, pd.ID)
		}
	}
	return ids, nil
}

type fakeExecutor struct {
	result *engine.ExecutionResult
	err    error
	got    *database.PendingDecision
}

func (f *fakeExecutor) ExecuteApproved(ctx context.Context, pd *database.PendingDecision) (*engine.ExecutionResult, error) {
	f.got = pd
	return f.result, f.err
}

func openProposal(id int64, expiresAt time.Time) *database.PendingDecision {
	return &database.PendingDecision{
		ID:         id,
		ModelID:    1,
		Coin:       "BTC",
		Signal:     "buy_to_enter",
		Quantity:   dec("0.02"),
		EntryPrice: dec("40000"),
		Status:     database.PendingStatusPending,
		CreatedAt:  time.Now().UTC().Add(-time.Minute),
		ExpiresAt:  expiresAt,
	}
}

func newTestQueue(store *fakeStore, exec Executor) *Queue {
	return NewQueue(store, exec, events.NewBus(), zerolog.Nop())
}

func TestApproveExecutes(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	exec := &fakeExecutor{result: &engine.ExecutionResult{Status: engine.StatusSimulated}}
	q := newTestQueue(store, exec)

	pd, err := q.Approve(context.Background(), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pd.Status != database.PendingStatusExecuted {
		t.Fatalf("status = %s, want executed", pd.Status)
	}
	if store.decisions[1].Status != database.PendingStatusExecuted {
		t.Fatalf("stored status = %s, want executed", store.decisions[1].Status)
	}
	if exec.got == nil || exec.got.ID != 1 {
		t.Fatal("executor did not receive the proposal")
	}
}

func TestApproveIsOneShot(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	exec := &fakeExecutor{result: &engine.ExecutionResult{Status: engine.StatusSimulated}}
	q := newTestQueue(store, exec)

	if _, err := q.Approve(context.Background(), 1, nil); err != nil {
		t.Fatal(err)
	}
	_, err := q.Approve(context.Background(), 1, nil)
	if !errors.Is(err, database.ErrNotPending) {
		t.Fatalf("second approve: err = %v, want ErrNotPending", err)
	}
}

func TestApproveAfterDeadlineExpires(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(-time.Minute)))
	exec := &fakeExecutor{}
	q := newTestQueue(store, exec)

	_, err := q.Approve(context.Background(), 1, nil)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if store.decisions[1].Status != database.PendingStatusExpired {
		t.Fatalf("stored status = %s, want expired", store.decisions[1].Status)
	}
	if exec.got != nil {
		t.Fatal("expired proposal must not reach the executor")
	}
}

func TestApproveFailedExecutionRejects(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	exec := &fakeExecutor{result: &engine.ExecutionResult{Status: engine.StatusFailed, Reason: "POSITION_SIZE"}}
	q := newTestQueue(store, exec)

	pd, err := q.Approve(context.Background(), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pd.Status != database.PendingStatusRejected {
		t.Fatalf("status = %s, want rejected", pd.Status)
	}
	stored := store.decisions[1]
	if stored.Status != database.PendingStatusRejected {
		t.Fatalf("stored status = %s, want rejected", stored.Status)
	}
	if stored.ResolutionNote == nil || *stored.ResolutionNote != "POSITION_SIZE" {
		t.Fatalf("resolution note = %v, want POSITION_SIZE", stored.ResolutionNote)
	}
}

func TestApproveExecutorErrorRejects(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	execErr := errors.New("exchange unreachable")
	exec := &fakeExecutor{err: execErr}
	q := newTestQueue(store, exec)

	_, err := q.Approve(context.Background(), 1, nil)
	if !errors.Is(err, execErr) {
		t.Fatalf("err = %v, want the executor error", err)
	}
	if store.decisions[1].Status != database.PendingStatusRejected {
		t.Fatalf("stored status = %s, want rejected", store.decisions[1].Status)
	}
}

func TestApprovePassesModifications(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	exec := &fakeExecutor{result: &engine.ExecutionResult{Status: engine.StatusSimulated}}
	q := newTestQueue(store, exec)

	qty := dec("0.01")
	lev := 2
	_, err := q.Approve(context.Background(), 1, &Modifications{Quantity: &qty, Leverage: &lev, Note: "halved"})
	if err != nil {
		t.Fatal(err)
	}
	if exec.got.ResolvedQuantity == nil || !exec.got.ResolvedQuantity.Equal(qty) {
		t.Fatalf("resolved quantity = %v, want 0.01", exec.got.ResolvedQuantity)
	}
	if exec.got.ResolvedLeverage == nil || *exec.got.ResolvedLeverage != 2 {
		t.Fatalf("resolved leverage = %v, want 2", exec.got.ResolvedLeverage)
	}
	stored := store.decisions[1]
	if stored.ResolutionNote == nil || *stored.ResolutionNote != "halved" {
		t.Fatalf("note = %v, want halved", stored.ResolutionNote)
	}
}

func TestReject(t *testing.T) {
	store := newFakeStore(openProposal(1, time.Now().UTC().Add(time.Hour)))
	q := newTestQueue(store, &fakeExecutor{})

	pd, err := q.Reject(context.Background(), 1, "too risky")
	if err != nil {
		t.Fatal(err)
	}
	if pd.Status != database.PendingStatusRejected {
		t.Fatalf("status = %s, want rejected", pd.Status)
	}
	if pd.ResolutionNote == nil || *pd.ResolutionNote != "too risky" {
		t.Fatalf("note = %v", pd.ResolutionNote)
	}

	_, err = q.Reject(context.Background(), 1, "")
	if !errors.Is(err, database.ErrNotPending) {
		t.Fatalf("second reject: err = %v, want ErrNotPending", err)
	}
}

func TestExpireSweep(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore(
		openProposal(1, now.Add(-time.Minute)),
		openProposal(2, now.Add(time.Hour)),
		openProposal(3, now.Add(-2*time.Hour)),
	)
	q := newTestQueue(store, &fakeExecutor{})

	n, err := q.ExpireSweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expired = %d, want 2", n)
	}
	if store.decisions[1].Status != database.PendingStatusExpired {
		t.Fatal("proposal 1 should be expired")
	}
	if store.decisions[2].Status != database.PendingStatusPending {
		t.Fatal("proposal 2 should survive the sweep")
	}
}

func TestExpireSweepKeepsExactDeadline(t *testing.T) {
	deadline := time.Now().UTC()
	store := newFakeStore(openProposal(1, deadline))
	q := newTestQueue(store, &fakeExecutor{})
	q.now = func() time.Time { return deadline }

	n, err := q.ExpireSweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("a proposal exactly at its deadline expires on the next sweep")
	}
}
