package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/market"
	"trading-orchestrator/internal/secrets"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Factory creates and caches per-model exchange clients. All API keys are
// per-model; there is no shared master key. Idle clients are evicted so
// rotated credentials are picked up within the TTL.
type Factory struct {
	store      *secrets.Store
	cfg        config.ExchangeConfig
	marketMock *MockClient
	logger     zerolog.Logger

	clients sync.Map // "modelID/environment" -> *clientEntry

	clientTTL     time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type clientEntry struct {
	client   ExchangeClient
	mu       sync.Mutex
	lastUsed time.Time
}

// NewFactory creates the client factory. In mock mode every model shares one
// simulated exchange priced from live market data.
func NewFactory(store *secrets.Store, cfg config.ExchangeConfig, data market.DataSource, logger zerolog.Logger) *Factory {
	f := &Factory{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		clientTTL:   30 * time.Minute,
		stopCleanup: make(chan struct{}),
	}

	if cfg.MockMode {
		f.marketMock = NewMockClient(decimal.NewFromInt(1_000_000), func(ctx context.Context, coin string) (decimal.Decimal, error) {
			snapshot, err := data.GetSnapshot(ctx, coin)
			if err != nil {
				return decimal.Zero, err
			}
			return snapshot.Price, nil
		})
	}

	f.startCleanup()
	return f
}

// ClientFor returns an exchange client for a model's configured environment
func (f *Factory) ClientFor(ctx context.Context, model *database.Model) (ExchangeClient, error) {
	if f.cfg.MockMode {
		return f.marketMock, nil
	}

	key := fmt.Sprintf("%d/%s", model.ID, model.ExchangeEnv)
	if entry, ok := f.clients.Load(key); ok {
		e := entry.(*clientEntry)
		e.mu.Lock()
		e.lastUsed = time.Now()
		e.mu.Unlock()
		return e.client, nil
	}

	creds, err := f.store.Get(ctx, model.ID, model.ExchangeEnv)
	if err != nil {
		return nil, fmt.Errorf("credentials for model %d (%s): %w", model.ID, model.ExchangeEnv, err)
	}

	baseURL := f.cfg.TestnetURL
	if model.ExchangeEnv == database.ExchangeMainnet {
		baseURL = f.cfg.MainnetURL
	}

	client := NewClient(creds.APIKey, creds.SecretKey, baseURL, f.cfg.Timeout,
		f.logger.With().Int64("model_id", model.ID).Logger())

	f.clients.Store(key, &clientEntry{client: client, lastUsed: time.Now()})
	return client, nil
}

// Invalidate drops cached clients for a model, forcing fresh credentials on
// the next use. Called after credential rotation or exchange_env changes.
func (f *Factory) Invalidate(modelID int64) {
	for _, env := range []string{database.ExchangeTestnet, database.ExchangeMainnet} {
		f.clients.Delete(fmt.Sprintf("%d/%s", modelID, env))
	}
	f.store.Invalidate(modelID)
}

// Close stops the cleanup goroutine and clears all cached clients
func (f *Factory) Close() {
	close(f.stopCleanup)
	f.clients.Range(func(key, _ any) bool {
		f.clients.Delete(key)
		return true
	})
}

func (f *Factory) startCleanup() {
	f.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for {
			select {
			case <-f.cleanupTicker.C:
				f.cleanupExpired()
			case <-f.stopCleanup:
				f.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (f *Factory) cleanupExpired() {
	now := time.Now()
	f.clients.Range(func(key, value any) bool {
		entry := value.(*clientEntry)
		entry.mu.Lock()
		if now.Sub(entry.lastUsed) > f.clientTTL {
			f.clients.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
}
