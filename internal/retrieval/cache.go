package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
)

// Backend is the key-value store behind the result cache. *redis.Client
// from pkg/redis satisfies it.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Flush(ctx context.Context) (int64, error)
}

// ResultCache memoises ranked responses per (query, request). Concurrent
// misses for the same key are collapsed into one computation. Backend
// errors degrade to a miss and are never returned to callers.
type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewResultCache(backend Backend, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "retrieval-cache"),
	}
}

func (c *ResultCache) get(ctx context.Context, key string) (*Response, bool) {
	var resp Response
	ok, err := c.backend.GetJSON(ctx, key, &resp)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &resp, true
}

// GetOrCompute returns the cached response for key or runs compute and
// stores its result. The boolean reports a cache hit.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func() (*Response, error)) (*Response, bool, error) {
	if resp, ok := c.get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		if err := c.backend.SetJSON(ctx, key, resp, c.ttl); err != nil {
			c.logger.Warn("cache set failed", "key", key, "error", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Response), false, nil
}

// Invalidate drops every cached response.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.Flush(ctx)
	if err != nil {
		return fmt.Errorf("invalidating retrieval cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey normalises the query so case and spacing variants share a key.
func cacheKey(query string, req ranking.Request) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	raw := fmt.Sprintf("%s|limit=%d|days=%g|alpha=%g|decay=%g",
		normalized, req.Limit, req.DaysBack, req.Alpha, req.DecayParam)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("ranked:%x", sum[:16])
}
