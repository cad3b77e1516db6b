package searcher

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
)

func TestPoolReusesSearcherWithinGeneration(t *testing.T) {
	e := newEngine(t, 10, scenarioDocs()...)
	p := NewPool(e, Options{})
	defer p.Close()

	a, err := p.Acquire()
	require.NoError(t, err)
	defer a.Release()
	b, err := p.Acquire()
	require.NoError(t, err)
	defer b.Release()

	assert.Same(t, a.Searcher(), b.Searcher())
}

func TestPoolRefreshKeepsOldLeasesValid(t *testing.T) {
	e := newEngine(t, 10, scenarioDocs()...)
	p := NewPool(e, Options{})
	defer p.Close()

	old, err := p.Acquire()
	require.NoError(t, err)
	oldGen := old.Searcher().Generation()

	require.NoError(t, e.IndexDocument(schema.NamedDocument{"title": {"sea shanty"}, "category": {"/cat/music"}}))
	require.NoError(t, e.Flush())

	fresh, err := p.Acquire()
	require.NoError(t, err)
	defer fresh.Release()
	assert.NotSame(t, old.Searcher(), fresh.Searcher())
	assert.Greater(t, fresh.Searcher().Generation(), oldGen)
	assert.Equal(t, uint64(4), fresh.Searcher().NumDocs())

	// the old searcher still answers from its own snapshot
	s := old.Searcher()
	result, err := s.Search(context.Background(), compile(t, s, "sea"), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Count)
	assert.Equal(t, oldGen, result.Generation)
	for _, hit := range result.Hits {
		_, err := s.Doc(hit.Address)
		require.NoError(t, err)
	}
	old.Release()
	old.Release()
}

func TestPoolDoReleasesOnError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := newEngine(t, 10, scenarioDocs()...)
	p := NewPool(e, Options{Metrics: m})
	defer p.Close()

	boom := errors.New("boom")
	err := p.Do(context.Background(), func(ctx context.Context, s *Searcher) error {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveLeases))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveLeases))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SnapshotDocs))
	assert.Equal(t, float64(e.Generation()), testutil.ToFloat64(m.SnapshotGeneration))
}

func TestPoolClosed(t *testing.T) {
	e := newEngine(t, 10, scenarioDocs()...)
	p := NewPool(e, Options{})

	lease, err := p.Acquire()
	require.NoError(t, err)
	p.Close()
	p.Close()

	_, err = p.Acquire()
	assert.ErrorIs(t, err, apperrors.ErrIndexClosed)

	// an outstanding lease outlives the pool
	doc, err := lease.Searcher().DocAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sea stories"}, doc["title"])
	lease.Release()
}
