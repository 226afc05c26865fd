package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-orchestrator/config"

	"github.com/rs/zerolog"
)

const klineLookback = 48

// DataSource supplies market snapshots to trading cycles
type DataSource interface {
	GetBasket(ctx context.Context) (*Basket, error)
	GetSnapshot(ctx context.Context, coin string) (*Snapshot, error)
}

// Service fetches snapshots for the configured coin basket, caching them in
// Redis when available. Cache errors never fail a cycle; the service falls
// through to a live fetch.
type Service struct {
	client *Client
	cache  *Cache
	coins  []string
	ttl    time.Duration
	logger zerolog.Logger
}

var _ DataSource = (*Service)(nil)

// NewService creates the market data service. cache may be nil when Redis is
// disabled.
func NewService(cfg config.MarketConfig, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{
		client: NewClient(cfg.BaseURL, logger),
		cache:  cache,
		coins:  cfg.Coins,
		ttl:    time.Duration(cfg.CacheTTL) * time.Second,
		logger: logger,
	}
}

// GetBasket fetches snapshots for every configured coin. A basket is only
// returned complete; any failed coin fails the whole fetch so a cycle never
// sees partial market state.
func (s *Service) GetBasket(ctx context.Context) (*Basket, error) {
	basket := &Basket{
		Snapshots: make(map[string]*Snapshot, len(s.coins)),
		FetchedAt: time.Now().UTC(),
	}
	for _, coin := range s.coins {
		snapshot, err := s.GetSnapshot(ctx, coin)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", coin, err)
		}
		basket.Snapshots[coin] = snapshot
	}
	return basket, nil
}

// GetSnapshot fetches the current snapshot for one coin, serving from cache
// while fresh
func (s *Service) GetSnapshot(ctx context.Context, coin string) (*Snapshot, error) {
	key := cacheKey(coin)

	if s.cache != nil {
		var cached Snapshot
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Debug().Err(err).Str("coin", coin).Msg("market cache read failed")
		}
	}

	snapshot, err := s.client.GetTicker24h(ctx, coin)
	if err != nil {
		return nil, err
	}

	klines, err := s.client.GetKlines(ctx, coin, klineLookback)
	if err != nil {
		return nil, err
	}
	snapshot.SMA20 = SMA(klines, 20)
	snapshot.RSI14 = RSI(klines, 14)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, snapshot, s.ttl); err != nil && !errors.Is(err, ErrCacheMiss) {
			s.logger.Debug().Err(err).Str("coin", coin).Msg("market cache write failed")
		}
	}
	return snapshot, nil
}

// Coins returns the configured trading basket
func (s *Service) Coins() []string {
	return s.coins
}

func cacheKey(coin string) string {
	return fmt.Sprintf("market:snapshot:%s", coin)
}
