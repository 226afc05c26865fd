package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-orchestrator/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCacheMiss is returned when a key is absent or Redis is unavailable
var ErrCacheMiss = errors.New("cache miss")

// Cache wraps Redis with graceful degradation: after repeated failures it
// stops hitting Redis until a background health check succeeds. Callers fall
// back to live fetches on any error.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewCache connects to Redis. A failed initial connection returns the cache
// in degraded mode rather than an error.
func NewCache(cfg config.RedisConfig, logger zerolog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Cache{
		client:        client,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, market cache degraded")
		return c
	}

	c.healthy = true
	c.lastCheck = time.Now()
	logger.Info().Str("address", cfg.Address).Msg("market cache connected to redis")
	return c
}

// IsHealthy reports whether Redis is currently usable
func (c *Cache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures {
		if c.healthy {
			c.logger.Warn().Int("failures", c.failureCount).Msg("redis marked unhealthy")
		}
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.logger.Info().Msg("redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

func (c *Cache) checkHealth() {
	c.mu.RLock()
	shouldCheck := !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		} else {
			c.mu.Lock()
			c.lastCheck = time.Now()
			c.mu.Unlock()
		}
	}()
}

// GetJSON retrieves and unmarshals a cached value
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	c.checkHealth()
	if !c.IsHealthy() {
		return ErrCacheMiss
	}

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		c.recordFailure()
		return fmt.Errorf("redis get failed: %w", err)
	}

	c.recordSuccess()
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON marshals and stores a value with a TTL. Failures degrade silently;
// the caller already has the live value.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.checkHealth()
	if !c.IsHealthy() {
		return ErrCacheMiss
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	c.recordSuccess()
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
