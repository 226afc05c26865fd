package scheduler

import (
	"context"
	"testing"
	"time"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	models       []*database.Model
	settings     map[int64]*database.ModelSettings
	incidents    []*database.Incident
	environments map[int64]string
	automations  map[int64]string
}

func newFakeStore(models ...*database.Model) *fakeStore {
	return &fakeStore{
		models:       models,
		settings:     make(map[int64]*database.ModelSettings),
		environments: make(map[int64]string),
		automations:  make(map[int64]string),
	}
}

func (f *fakeStore) GetModel(ctx context.Context, id int64) (*database.Model, error) {
	for _, m := range f.models {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) ListModels(ctx context.Context) ([]*database.Model, error) {
	return f.models, nil
}

func (f *fakeStore) ListActiveModels(ctx context.Context) ([]*database.Model, error) {
	var out []*database.Model
	for _, m := range f.models {
		if m.Status == database.ModelStatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error) {
	if s, ok := f.settings[modelID]; ok {
		return s, nil
	}
	return &database.ModelSettings{ModelID: modelID}, nil
}

func (f *fakeStore) UpdateModelAutomation(ctx context.Context, id int64, automation string) error {
	f.automations[id] = automation
	for _, m := range f.models {
		if m.ID == id {
			m.Automation = automation
		}
	}
	return nil
}

func (f *fakeStore) UpdateModelEnvironment(ctx context.Context, id int64, environment string) error {
	f.environments[id] = environment
	for _, m := range f.models {
		if m.ID == id {
			m.Environment = environment
		}
	}
	return nil
}

func (f *fakeStore) CreateIncident(ctx context.Context, inc *database.Incident) error {
	f.incidents = append(f.incidents, inc)
	return nil
}

func (f *fakeStore) LatestIncidentByType(ctx context.Context, incidentType string) (*database.Incident, error) {
	for i := len(f.incidents) - 1; i >= 0; i-- {
		if f.incidents[i].Type == incidentType {
			return f.incidents[i], nil
		}
	}
	return nil, database.ErrNotFound
}

func newTestScheduler(store *fakeStore) *Scheduler {
	return New(store, nil, nil, events.NewBus(), zerolog.Nop())
}

func TestClampInterval(t *testing.T) {
	cases := []struct {
		minutes int
		want    time.Duration
	}{
		{0, 60 * time.Minute},
		{-10, 60 * time.Minute},
		{3, 5 * time.Minute},
		{5, 5 * time.Minute},
		{90, 90 * time.Minute},
		{1440, 1440 * time.Minute},
		{5000, 1440 * time.Minute},
	}
	for _, c := range cases {
		if got := ClampInterval(c.minutes); got != c.want {
			t.Errorf("ClampInterval(%d) = %s, want %s", c.minutes, got, c.want)
		}
	}
}

func TestEmergencyStopAll(t *testing.T) {
	store := newFakeStore(
		&database.Model{ID: 1, Environment: database.EnvSimulation},
		&database.Model{ID: 2, Environment: database.EnvLive},
		&database.Model{ID: 3, Environment: database.EnvLive},
	)
	s := newTestScheduler(store)

	if err := s.EmergencyStopAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, m := range store.models {
		if m.Environment != database.EnvSimulation {
			t.Fatalf("model %d environment = %s, want simulation", m.ID, m.Environment)
		}
	}
	// Model 1 was already in simulation, no write for it
	if _, touched := store.environments[1]; touched {
		t.Fatal("already-simulated model should not be rewritten")
	}

	if len(store.incidents) != 1 {
		t.Fatalf("incidents = %d, want exactly 1", len(store.incidents))
	}
	inc := store.incidents[0]
	if inc.Type != database.IncidentEmergencyStopAll || inc.Severity != database.SeverityCritical {
		t.Fatalf("incident = %s/%s", inc.Type, inc.Severity)
	}
	affected, ok := inc.Details["affected"].([]map[string]any)
	if !ok || len(affected) != 2 {
		t.Fatalf("affected = %v, want the two previously-live models", inc.Details["affected"])
	}
}

func TestEmergencyStopAllIdempotentWithinSecond(t *testing.T) {
	store := newFakeStore(&database.Model{ID: 1, Environment: database.EnvLive})
	s := newTestScheduler(store)
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	if err := s.EmergencyStopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.EmergencyStopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.incidents) != 1 {
		t.Fatalf("incidents = %d, want 1 (repeat within a second is a no-op)", len(store.incidents))
	}

	// A second later the operation runs again
	s.now = func() time.Time { return frozen.Add(time.Second) }
	if err := s.EmergencyStopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.incidents) != 2 {
		t.Fatalf("incidents = %d, want 2", len(store.incidents))
	}
}

func TestEmergencyPauseDefaultsToSemi(t *testing.T) {
	store := newFakeStore(&database.Model{ID: 1, Automation: database.AutomationFull})
	s := newTestScheduler(store)

	if err := s.EmergencyPause(context.Background(), 1, ""); err != nil {
		t.Fatal(err)
	}
	if store.automations[1] != database.AutomationSemi {
		t.Fatalf("automation = %s, want semi", store.automations[1])
	}

	if len(store.incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(store.incidents))
	}
	inc := store.incidents[0]
	if inc.Type != database.IncidentEmergencyPause || inc.Severity != database.SeverityHigh {
		t.Fatalf("incident = %s/%s", inc.Type, inc.Severity)
	}
	if inc.Details["previous_automation"] != database.AutomationFull ||
		inc.Details["new_automation"] != database.AutomationSemi {
		t.Fatalf("details = %v", inc.Details)
	}
}

func TestEmergencyPauseToManual(t *testing.T) {
	store := newFakeStore(&database.Model{ID: 1, Automation: database.AutomationFull})
	s := newTestScheduler(store)

	if err := s.EmergencyPause(context.Background(), 1, database.AutomationManual); err != nil {
		t.Fatal(err)
	}
	if store.automations[1] != database.AutomationManual {
		t.Fatalf("automation = %s, want manual", store.automations[1])
	}
}

func TestEmergencyPauseRejectsInvalidTarget(t *testing.T) {
	store := newFakeStore(&database.Model{ID: 1, Automation: database.AutomationFull})
	s := newTestScheduler(store)

	if err := s.EmergencyPause(context.Background(), 1, database.AutomationFull); err == nil {
		t.Fatal("pausing to full automation makes no sense and must fail")
	}
	if len(store.incidents) != 0 {
		t.Fatal("invalid target must not write an incident")
	}
}

type fakeRunner struct {
	report *engine.CycleReport
}

func (f *fakeRunner) RunCycle(ctx context.Context, modelID int64) (*engine.CycleReport, error) {
	return f.report, nil
}

type fakeSweeper struct{}

func (fakeSweeper) ExpireSweep(ctx context.Context) (int, error) { return 0, nil }

func TestTickDropsPausedModelLoop(t *testing.T) {
	store := newFakeStore(&database.Model{ID: 1, Status: database.ModelStatusActive})
	runner := &fakeRunner{report: &engine.CycleReport{
		ModelID:    1,
		Skipped:    true,
		SkipReason: "model paused",
	}}
	s := New(store, runner, fakeSweeper{}, events.NewBus(), zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if s.loopCount() != 1 {
		t.Fatalf("loops = %d, want 1", s.loopCount())
	}
	s.tick(context.Background(), 1)
	if s.loopCount() != 0 {
		t.Fatal("a cycle skipped for a paused model must drop the loop")
	}
}

func TestTradingToggle(t *testing.T) {
	s := newTestScheduler(newFakeStore())
	if !s.TradingEnabled() {
		t.Fatal("trading starts enabled")
	}
	s.SetTradingEnabled(false)
	if s.TradingEnabled() {
		t.Fatal("toggle did not stick")
	}
	s.SetTradingEnabled(true)
	if !s.TradingEnabled() {
		t.Fatal("re-enable did not stick")
	}
}
