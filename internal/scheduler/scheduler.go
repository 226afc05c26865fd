package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Interval bounds for per-model cycle loops, in minutes
const (
	MinIntervalMinutes     = 5
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 60
)

// store is the slice of the repository the scheduler needs
type store interface {
	GetModel(ctx context.Context, id int64) (*database.Model, error)
	ListModels(ctx context.Context) ([]*database.Model, error)
	ListActiveModels(ctx context.Context) ([]*database.Model, error)
	GetSettings(ctx context.Context, modelID int64) (*database.ModelSettings, error)
	UpdateModelAutomation(ctx context.Context, id int64, automation string) error
	UpdateModelEnvironment(ctx context.Context, id int64, environment string) error
	CreateIncident(ctx context.Context, inc *database.Incident) error
	LatestIncidentByType(ctx context.Context, incidentType string) (*database.Incident, error)
}

// CycleRunner drives one trading cycle. Implemented by *engine.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context, modelID int64) (*engine.CycleReport, error)
}

// Sweeper lapses overdue pending decisions. Implemented by *pending.Queue.
type Sweeper interface {
	ExpireSweep(ctx context.Context) (int, error)
}

type modelLoop struct {
	modelID  int64
	interval time.Duration
	cancel   context.CancelFunc
}

// Scheduler owns the per-model cycle loops, the minute sweep, the global
// trading toggle, and the emergency operations. Loops for different models
// run concurrently; operations that span models take the registry lock.
type Scheduler struct {
	store   store
	runner  CycleRunner
	sweeper Sweeper
	bus     *events.Bus
	logger  zerolog.Logger
	cron    *cron.Cron
	now     func() time.Time

	mu             sync.Mutex // guards loops and the cross-model operations
	loops          map[int64]*modelLoop
	tradingEnabled bool
	started        bool

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates the scheduler
func New(s store, runner CycleRunner, sweeper Sweeper, bus *events.Bus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:          s,
		runner:         runner,
		sweeper:        sweeper,
		bus:            bus,
		logger:         logger,
		cron:           cron.New(),
		now:            time.Now,
		loops:          make(map[int64]*modelLoop),
		tradingEnabled: true,
	}
}

// Start spawns the loops for all active models and the minute expire sweep
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.rootCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if _, err := s.cron.AddFunc("* * * * *", func() {
		if _, err := s.sweeper.ExpireSweep(s.rootCtx); err != nil {
			s.logger.Error().Err(err).Msg("pending expire sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule expire sweep: %w", err)
	}
	s.cron.Start()

	if err := s.SyncModels(ctx); err != nil {
		return err
	}

	s.logger.Info().Int("models", s.loopCount()).Msg("scheduler started")
	return nil
}

// Stop halts the sweeps and all model loops, waiting for in-flight cycles to
// drain. In-flight exchange orders are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for id, loop := range s.loops {
		loop.cancel()
		delete(s.loops, id)
	}
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// SetTradingEnabled flips the global toggle. Loops keep ticking; disabled
// ticks are skipped without unloading any state.
func (s *Scheduler) SetTradingEnabled(enabled bool) {
	s.mu.Lock()
	s.tradingEnabled = enabled
	s.mu.Unlock()
	s.logger.Info().Bool("enabled", enabled).Msg("global trading toggle changed")
}

// TradingEnabled reports the global toggle state
func (s *Scheduler) TradingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradingEnabled
}

// SyncModels reconciles the loop registry against the store: active models
// gain a loop, paused or deleted models lose theirs, and interval changes
// restart the loop.
func (s *Scheduler) SyncModels(ctx context.Context) error {
	models, err := s.store.ListActiveModels(ctx)
	if err != nil {
		return fmt.Errorf("list active models: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("scheduler not started")
	}

	seen := make(map[int64]bool, len(models))
	for _, m := range models {
		seen[m.ID] = true
		interval, err := s.modelInterval(ctx, m.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("model_id", m.ID).Msg("skipping model, settings unavailable")
			continue
		}
		if loop, ok := s.loops[m.ID]; ok {
			if loop.interval == interval {
				continue
			}
			loop.cancel()
			delete(s.loops, m.ID)
		}
		s.spawnLoop(m.ID, interval)
	}

	for id, loop := range s.loops {
		if !seen[id] {
			loop.cancel()
			delete(s.loops, id)
			s.logger.Info().Int64("model_id", id).Msg("model loop removed")
		}
	}
	return nil
}

// RefreshModel re-reads one model's interval and restarts its loop. Call
// after a settings or status change.
func (s *Scheduler) RefreshModel(ctx context.Context, modelID int64) error {
	return s.SyncModels(ctx)
}

func (s *Scheduler) modelInterval(ctx context.Context, modelID int64) (time.Duration, error) {
	settings, err := s.store.GetSettings(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return ClampInterval(settings.TradingIntervalMinutes), nil
}

// ClampInterval bounds a configured interval to [5, 1440] minutes, defaulting
// an unset value to 60
func ClampInterval(minutes int) time.Duration {
	switch {
	case minutes <= 0:
		minutes = DefaultIntervalMinutes
	case minutes < MinIntervalMinutes:
		minutes = MinIntervalMinutes
	case minutes > MaxIntervalMinutes:
		minutes = MaxIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// spawnLoop starts a ticker loop for one model. Caller holds s.mu.
func (s *Scheduler) spawnLoop(modelID int64, interval time.Duration) {
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.loops[modelID] = &modelLoop{modelID: modelID, interval: interval, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, modelID)
			}
		}
	}()

	s.logger.Info().
		Int64("model_id", modelID).
		Dur("interval", interval).
		Msg("model loop started")
}

func (s *Scheduler) tick(ctx context.Context, modelID int64) {
	if !s.TradingEnabled() {
		return
	}
	report, err := s.runner.RunCycle(ctx, modelID)
	if err != nil {
		s.logger.Error().Err(err).Int64("model_id", modelID).Msg("cycle failed")
		s.bus.PublishError("scheduler", fmt.Sprintf("cycle failed for model %d", modelID), err)
		return
	}
	// A paused model keeps no loop; reactivation through the API resyncs
	if report.Skipped && report.SkipReason == "model paused" {
		s.removeLoop(modelID)
		return
	}
	s.logger.Debug().
		Int64("model_id", modelID).
		Bool("skipped", report.Skipped).
		Int("actions", len(report.Actions)).
		Msg("cycle completed")
}

func (s *Scheduler) removeLoop(modelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loop, ok := s.loops[modelID]; ok {
		loop.cancel()
		delete(s.loops, modelID)
		s.logger.Info().Int64("model_id", modelID).Msg("model loop removed")
	}
}

func (s *Scheduler) loopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// ============================================================================
// EMERGENCY OPERATIONS
// ============================================================================

// EmergencyPause drops one model's automation to a level requiring human
// action. Target is semi unless the operator asks for manual.
func (s *Scheduler) EmergencyPause(ctx context.Context, modelID int64, target string) error {
	if target == "" {
		target = database.AutomationSemi
	}
	if target != database.AutomationSemi && target != database.AutomationManual {
		return fmt.Errorf("invalid pause target %q", target)
	}

	model, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		return fmt.Errorf("model %d: %w", modelID, err)
	}
	if err := s.store.UpdateModelAutomation(ctx, modelID, target); err != nil {
		return fmt.Errorf("update automation: %w", err)
	}

	inc := &database.Incident{
		ModelID:  &modelID,
		Type:     database.IncidentEmergencyPause,
		Severity: database.SeverityHigh,
		Message:  fmt.Sprintf("emergency pause: automation %s to %s", model.Automation, target),
		Details: map[string]any{
			"previous_automation": model.Automation,
			"new_automation":      target,
		},
		Timestamp: s.now().UTC(),
	}
	if err := s.store.CreateIncident(ctx, inc); err != nil {
		return fmt.Errorf("write incident: %w", err)
	}

	s.bus.Publish(events.Event{
		Type:    events.EventEmergencyPause,
		ModelID: modelID,
		Data:    inc.Details,
	})
	s.logger.Warn().Int64("model_id", modelID).Str("target", target).Msg("emergency pause")
	return nil
}

// EmergencyStopAll forces every model to the simulation environment and
// writes one critical incident listing the models that were live. Calling it
// again within the same second is a no-op. Already-submitted exchange orders
// are not cancelled.
func (s *Scheduler) EmergencyStopAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	last, err := s.store.LatestIncidentByType(ctx, database.IncidentEmergencyStopAll)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("idempotence check: %w", err)
	}
	if last != nil && now.Sub(last.Timestamp) < time.Second {
		s.logger.Info().Msg("emergency stop all repeated within a second, nothing to do")
		return nil
	}

	models, err := s.store.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	affected := make([]map[string]any, 0, len(models))
	for _, m := range models {
		if m.Environment == database.EnvSimulation {
			continue
		}
		if err := s.store.UpdateModelEnvironment(ctx, m.ID, database.EnvSimulation); err != nil {
			return fmt.Errorf("stop model %d: %w", m.ID, err)
		}
		affected = append(affected, map[string]any{
			"model_id":             m.ID,
			"previous_environment": m.Environment,
		})
	}

	inc := &database.Incident{
		Type:      database.IncidentEmergencyStopAll,
		Severity:  database.SeverityCritical,
		Message:   fmt.Sprintf("emergency stop all: %d model(s) forced to simulation", len(affected)),
		Details:   map[string]any{"affected": affected},
		Timestamp: now,
	}
	if err := s.store.CreateIncident(ctx, inc); err != nil {
		return fmt.Errorf("write incident: %w", err)
	}

	s.bus.Publish(events.Event{
		Type: events.EventEmergencyStopAll,
		Data: map[string]any{"affected": affected},
	})
	s.logger.Warn().Int("affected", len(affected)).Msg("emergency stop all")
	return nil
}
