// Package cache memoizes search results in Redis. Identical requests (same
// candidates, guidance, search budget and service variant) map to the same
// key, and concurrent identical misses share a single search through
// singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/search"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
)

const keyPrefix = "sequence:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one search. Variant captures service-level settings that
// change the outcome without appearing in the request, such as the optional
// meter and rhyme constraints.
type Key struct {
	Candidates     []chunk.Chunk    `json:"candidates"`
	Guidance       guidance.Profile `json:"guidance"`
	Params         search.Params    `json:"params"`
	InitialAnchors []string         `json:"initial_anchors,omitempty"`
	Variant        string           `json:"variant,omitempty"`
}

// Entry is what gets cached: the final result and whether it came from the
// relaxed retry.
type Entry struct {
	Result  *search.Result `json:"result"`
	Relaxed bool           `json:"relaxed"`
}

type ResultCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps store. Store failures trip a circuit breaker named "redis"; while
// it is open every lookup is a miss and writes are skipped, so searches keep
// working without the cache.
func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		store: store,
		ttl:   cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			IsFailure: func(err error) bool {
				return !pkgredis.IsNilError(err) && !errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, s resilience.State) {
				m.SetCircuitState(name, int(s))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, key Key) (*Entry, bool) {
	k, err := c.buildKey(key)
	if err != nil {
		c.logger.Error("cache key failed", "error", err)
		c.miss()
		return nil, false
	}
	return c.get(ctx, k)
}

func (c *ResultCache) get(ctx context.Context, k string) (*Entry, bool) {
	data, err := resilience.Call(c.breaker, func() ([]byte, error) {
		return c.store.Get(ctx, k)
	})
	if pkgredis.IsNilError(err) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", k)
	return &entry, true
}

// Breaker exposes the breaker guarding the store for health reporting.
func (c *ResultCache) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

func (c *ResultCache) Set(ctx context.Context, key Key, entry *Entry) {
	k, err := c.buildKey(key)
	if err != nil {
		c.logger.Error("cache key failed", "error", err)
		return
	}
	c.set(ctx, k, entry)
}

func (c *ResultCache) set(ctx context.Context, k string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, k, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached entry for key or runs compute once for all
// concurrent callers with the same key. Only successful results are stored.
// The boolean reports a cache hit.
func (c *ResultCache) GetOrCompute(ctx context.Context, key Key, compute func() (*Entry, error)) (*Entry, bool, error) {
	k, err := c.buildKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("building cache key: %w", err)
	}
	if entry, ok := c.get(ctx, k); ok {
		return entry, true, nil
	}
	val, err, _ := c.group.Do(k, func() (interface{}, error) {
		entry, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, k, entry)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry), false, nil
}

// Invalidate drops every cached search.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// buildKey hashes the JSON encoding of key. encoding/json writes map keys in
// sorted order, so equal requests always hash alike.
func (c *ResultCache) buildKey(key Key) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16]), nil
}
