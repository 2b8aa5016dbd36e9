// Package cache stores JSON-encoded query responses in Redis. Keys embed the
// vocabulary version, so a reload can never serve answers computed against
// the previous vocabulary, and concurrent misses for the same key are
// collapsed into a single computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "emb:"

// Backend is the subset of pkg/redis.Client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// QueryCache is a read-through response cache. A nil *QueryCache is valid
// and caches nothing.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewBreaker("redis-cache", resilience.BreakerConfig{FailureThreshold: 5, Cooldown: 10 * time.Second}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key for an operation and its normalised arguments
// under vocabulary version.
func Key(version, operation string, args ...string) string {
	raw := operation + "\x00" + strings.Join(args, "\x00")
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, version, sum[:16])
}

// Fetch returns the cached value for key, or computes, stores and returns it.
// The boolean reports a cache hit. Errors from compute are returned as-is
// and never cached; Redis errors only cost a recompute.
func Fetch[T any](ctx context.Context, c *QueryCache, key string, compute func() (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	if v, ok := get[T](ctx, c, key); ok {
		return v, true, nil
	}
	shared, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := get[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return shared.(T), false, nil
}

func get[T any](ctx context.Context, c *QueryCache, key string) (T, bool) {
	var v T
	var data []byte
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNil(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
		c.miss()
		return v, false
	}
	if data == nil {
		c.miss()
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return v, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return v, true
}

func (c *QueryCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Do(func() error { return c.backend.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Available reports whether the breaker is letting Redis calls through.
func (c *QueryCache) Available() bool {
	return c.breaker.State() != resilience.StateOpen
}
