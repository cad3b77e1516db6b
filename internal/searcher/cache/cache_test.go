package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResult() *searcher.SearchResult {
	return &searcher.SearchResult{
		Count:      3,
		Hits:       []collector.Hit{{Score: 1.5, Address: collector.NewDocAddress(1, 4)}},
		Facets:     map[string][]collector.FacetEntry{"category": {{Facet: "/cat/books", Count: 2}}},
		Generation: 7,
	}
}

func TestKeyNormalization(t *testing.T) {
	a := Key{Generation: 1, Query: "Sea  stories", Limit: 10}
	b := Key{Generation: 1, Query: "stories sea", Limit: 10}
	assert.Equal(t, buildKey(a), buildKey(b))

	assert.NotEqual(t, buildKey(a), buildKey(Key{Generation: 2, Query: "sea stories", Limit: 10}))
	assert.NotEqual(t, buildKey(a), buildKey(Key{Generation: 1, Query: "sea stories", Limit: 5}))
	assert.NotEqual(t,
		buildKey(Key{Query: "category:/Cat"}),
		buildKey(Key{Query: "category:/cat"}),
	)

	f1 := Key{Facets: searcher.FacetRequest{"a": {"/x", "/y"}, "b": {"/z"}}}
	f2 := Key{Facets: searcher.FacetRequest{"b": {"/z"}, "a": {"/x", "/y"}}}
	f3 := Key{Facets: searcher.FacetRequest{"a": {"/y", "/x"}, "b": {"/z"}}}
	assert.Equal(t, buildKey(f1), buildKey(f2))
	assert.NotEqual(t, buildKey(f1), buildKey(f3))

	joined := Key{Facets: searcher.FacetRequest{"cat": {"/a,/b"}}}
	split := Key{Facets: searcher.FacetRequest{"cat": {"/a", "/b"}}}
	assert.NotEqual(t, buildKey(joined), buildKey(split))
	assert.NotEqual(t,
		buildKey(Key{Facets: searcher.FacetRequest{"a": {"/x|b=/y"}}}),
		buildKey(Key{Facets: searcher.FacetRequest{"a": {"/x"}, "b": {"/y"}}}))
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), config.RedisConfig{CacheTTL: time.Minute}, m)
	key := Key{Generation: 7, Query: "sea", Limit: 2, Facets: searcher.FacetRequest{"category": {"/cat/books"}}}

	calls := 0
	compute := func() (*searcher.SearchResult, error) {
		calls++
		return sampleResult(), nil
	}
	first, cached, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	second, cached, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "closed", stats.Breaker)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestComputeErrorsAreNotCached(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{}, nil)
	key := Key{Query: "sea", Limit: 1}
	boom := errors.New("scan failed")

	_, _, err := c.GetOrCompute(context.Background(), key, func() (*searcher.SearchResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
}

func TestConcurrentComputeIsShared(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{}, nil)
	key := Key{Query: "sea", Limit: 1}
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), key, func() (*searcher.SearchResult, error) {
				calls.Add(1)
				<-release
				return sampleResult(), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestStoreFailureOpensBreaker(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, config.RedisConfig{}, m)
	key := Key{Query: "sea", Limit: 1}

	for i := 0; i < 6; i++ {
		result, _, err := c.GetOrCompute(context.Background(), key, func() (*searcher.SearchResult, error) {
			return sampleResult(), nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), result.Count)
	}
	assert.Equal(t, "open", c.Stats().Breaker)
	assert.Positive(t, c.Stats().BreakerFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{}, nil)
	c.Set(context.Background(), Key{Query: "a", Limit: 1}, sampleResult())
	c.Set(context.Background(), Key{Query: "b", Limit: 1}, sampleResult())

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, ok := c.Get(context.Background(), Key{Query: "a", Limit: 1})
	assert.False(t, ok)
}
