// Package cache stores search results in Redis, keyed by the index
// generation they were computed against so that a reload never serves hits
// addressing another snapshot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable search.
type Key struct {
	Generation uint64
	Query      string
	Limit      int
	Facets     searcher.FacetRequest
}

// String encodes the key as JSON. Facet fields come out sorted by name and
// prefixes keep their request order, which the projected output depends on.
func (k Key) String() string {
	b, err := json.Marshal(struct {
		Generation uint64                `json:"g"`
		Query      string                `json:"q"`
		Limit      int                   `json:"l"`
		Facets     searcher.FacetRequest `json:"f,omitempty"`
	}{k.Generation, normalizeQuery(k.Query), k.Limit, k.Facets})
	if err != nil {
		// strings, ints and maps of string slices always encode
		panic(fmt.Sprintf("encoding cache key: %v", err))
	}
	return string(b)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("redis-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for key. Redis failures and an open circuit
// are reported as misses.
func (c *QueryCache) Get(ctx context.Context, key Key) (*searcher.SearchResult, bool) {
	redisKey := buildKey(key)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, redisKey)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", redisKey, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var result searcher.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", redisKey, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", key.Query, "generation", key.Generation)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *searcher.SearchResult) {
	redisKey := buildKey(key)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", redisKey, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, redisKey, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", redisKey, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once for
// all concurrent callers asking for the same key. Failed computations are
// not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*searcher.SearchResult, error),
) (*searcher.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(buildKey(key), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*searcher.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

type Stats struct {
	Hits            int64  `json:"hits"`
	Misses          int64  `json:"misses"`
	Breaker         string `json:"breaker"`
	BreakerFailures int64  `json:"breaker_failures"`
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Breaker:         c.breaker.GetState().String(),
		BreakerFailures: c.breaker.Failures(),
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(key Key) string {
	hash := sha256.Sum256([]byte(key.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery canonicalizes a raw query so that reordered or differently
// cased terms share a cache entry. Facet filters keep their case.
func normalizeQuery(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0)
	excludes := make([]string, 0)
	queryType := "AND"
	excludeNext := false
	for _, w := range words {
		switch strings.ToUpper(w) {
		case "AND":
			queryType = "AND"
		case "OR":
			queryType = "OR"
		case "NOT":
			excludeNext = true
		default:
			if !strings.Contains(w, ":/") {
				w = strings.ToLower(w)
			}
			if excludeNext {
				excludes = append(excludes, w)
				excludeNext = false
			} else {
				terms = append(terms, w)
			}
		}
	}

	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{queryType, strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}
