// Package cache provides the tagged two-tier cache-aside layer: a process
// local LRU tier in front of the datastore's shared cache tier. The shared
// tier keeps replicas consistent; the local tier bounds how often a replica
// pays the round trip. Tag invalidation purges both tiers, and any tier
// failure degrades the lookup to a direct factory call instead of failing
// the request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/storage"
)

const (
	defaultLocalTTL        = 10 * time.Second
	defaultSharedTTL       = 60 * time.Second
	defaultMaxLocalEntries = 10000
)

var (
	cacheLookupTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cache_lookup_total_count",
		Help:      "The total number of tiered cache lookups.",
	})

	cacheHitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cache_hit_count",
		Help:      "The total number of tiered cache hits, by tier.",
	}, []string{"tier"})

	cacheMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cache_miss_count",
		Help:      "The total number of lookups that missed every tier.",
	})

	cacheDegradedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cache_degraded_count",
		Help:      "The total number of lookups served uncached because a cache tier failed.",
	})
)

// Factory produces the value for a key when every tier misses.
type Factory func(ctx context.Context) ([]byte, error)

// TieredCache is the cache-aside layer. Entries are serialized bytes keyed
// by string and grouped by tags; [GetOrCreateJSON] is the typed convenience
// over it. The shared tier may be nil, in which case the cache runs
// local-only.
type TieredCache struct {
	local           storage.InMemoryCache[[]byte]
	shared          storage.SharedCacheBackend
	group           singleflight.Group
	localTTL        time.Duration
	sharedTTL       time.Duration
	maxLocalEntries int64
	logger          logger.Logger

	// mu guards tags, the tag -> local keys index. The index may briefly
	// hold keys the LRU already evicted; invalidation clears them.
	mu   sync.Mutex
	tags map[string]map[string]struct{}

	// allocatedLocal is set when the local tier is allocated by this struct.
	// If so, TieredCache is responsible for stopping it.
	allocatedLocal bool
}

// TieredCacheOpt defines an option that can be used to change the behavior
// of a TieredCache instance.
type TieredCacheOpt func(*TieredCache)

// WithLocalTTL sets the TTL for entries in the local tier. It bounds how
// stale a replica can serve an entry another replica already invalidated.
func WithLocalTTL(ttl time.Duration) TieredCacheOpt {
	return func(c *TieredCache) {
		c.localTTL = ttl
	}
}

// WithSharedTTL sets the TTL written to the shared tier.
func WithSharedTTL(ttl time.Duration) TieredCacheOpt {
	return func(c *TieredCache) {
		c.sharedTTL = ttl
	}
}

// WithMaxLocalEntries sets the maximum number of entries in the local tier.
// After this maximum is met, keys are evicted with an LRU policy.
func WithMaxLocalEntries(n int64) TieredCacheOpt {
	return func(c *TieredCache) {
		c.maxLocalEntries = n
	}
}

// WithExistingLocalCache sets the local tier to the specified cache. The
// cache will not be stopped on Close as it may still be used by others; it
// is up to the caller to stop it.
func WithExistingLocalCache(local storage.InMemoryCache[[]byte]) TieredCacheOpt {
	return func(c *TieredCache) {
		c.local = local
	}
}

// WithLogger sets the logger for the tiered cache.
func WithLogger(logger logger.Logger) TieredCacheOpt {
	return func(c *TieredCache) {
		c.logger = logger
	}
}

// NewTieredCache constructs the cache-aside layer over the given shared
// tier. Pass nil for deployments without one.
func NewTieredCache(shared storage.SharedCacheBackend, opts ...TieredCacheOpt) *TieredCache {
	c := &TieredCache{
		shared:          shared,
		localTTL:        defaultLocalTTL,
		sharedTTL:       defaultSharedTTL,
		maxLocalEntries: defaultMaxLocalEntries,
		logger:          logger.NewNoopLogger(),
		tags:            make(map[string]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.local == nil {
		c.allocatedLocal = true
		c.local = storage.NewInMemoryLRUCache(storage.WithMaxCacheSize[[]byte](c.maxLocalEntries))
	}

	return c
}

// GetOrCreate returns the value under key, trying the local tier, then the
// shared tier, then a singleflight-collapsed factory call that populates
// both. A tier error is logged and counted, and the lookup degrades to a
// direct factory call whose result is returned uncached.
func (c *TieredCache) GetOrCreate(ctx context.Context, key string, tags []string, factory Factory) ([]byte, error) {
	cacheLookupTotalCounter.Inc()

	if value := c.local.Get(key); value != nil {
		cacheHitCounter.WithLabelValues("local").Inc()
		return value, nil
	}

	if c.shared != nil {
		value, ok, err := c.shared.GetCacheEntry(ctx, key)
		if err != nil {
			return c.degrade(ctx, key, "shared cache read failed", err, factory)
		}
		if ok {
			cacheHitCounter.WithLabelValues("shared").Inc()
			c.storeLocal(key, value, tags)
			return value, nil
		}
	}

	cacheMissCounter.Inc()

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}

		if c.shared != nil {
			if err := c.shared.SetCacheEntry(ctx, key, value, tags, c.sharedTTL); err != nil {
				cacheDegradedCounter.Inc()
				c.logger.Error("shared cache write failed", zap.String("cache_key", key), zap.Error(err))
				return value, nil
			}
		}

		c.storeLocal(key, value, tags)
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]byte), nil
}

// Invalidate purges key from both tiers. Errors are logged, not propagated.
func (c *TieredCache) Invalidate(ctx context.Context, key string) {
	c.local.Delete(key)

	if c.shared != nil {
		if err := c.shared.DeleteCacheEntry(ctx, key); err != nil {
			c.logger.Error("shared cache delete failed", zap.String("cache_key", key), zap.Error(err))
		}
	}
}

// InvalidateByTag purges every entry carrying tag from both tiers. Errors
// are logged, not propagated.
func (c *TieredCache) InvalidateByTag(ctx context.Context, tag string) {
	c.mu.Lock()
	keys := c.tags[tag]
	delete(c.tags, tag)
	c.mu.Unlock()

	for key := range keys {
		c.local.Delete(key)
	}

	if c.shared != nil {
		if err := c.shared.DeleteCacheTag(ctx, tag); err != nil {
			c.logger.Error("shared cache tag delete failed", zap.String("cache_tag", tag), zap.Error(err))
		}
	}
}

// Close stops the local tier if it was allocated by this struct.
func (c *TieredCache) Close() {
	if c.allocatedLocal {
		c.local.Stop()
	}
}

func (c *TieredCache) storeLocal(key string, value []byte, tags []string) {
	c.local.Set(key, value, c.localTTL)

	if len(tags) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *TieredCache) degrade(ctx context.Context, key, msg string, err error, factory Factory) ([]byte, error) {
	cacheDegradedCounter.Inc()
	c.logger.Error(msg, zap.String("cache_key", key), zap.Error(err))
	return factory(ctx)
}

// GetOrCreateJSON is the typed convenience over [TieredCache.GetOrCreate]
// for values that serialize as JSON.
func GetOrCreateJSON[T any](ctx context.Context, c *TieredCache, key string, tags []string, factory func(ctx context.Context) (T, error)) (T, error) {
	var result T

	raw, err := c.GetOrCreate(ctx, key, tags, func(ctx context.Context) ([]byte, error) {
		value, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decode cached entry %s: %w", key, err)
	}
	return result, nil
}

// Key builds a stable cache key from a readable prefix and the request
// parts that vary, digesting the parts so filter-heavy list keys stay
// bounded.
func Key(prefix string, parts ...string) string {
	hasher := xxhash.New()
	for _, part := range parts {
		_, _ = hasher.WriteString(part)
		_, _ = hasher.WriteString("/")
	}
	return prefix + ":" + strconv.FormatUint(hasher.Sum64(), 10)
}
