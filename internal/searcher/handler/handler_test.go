package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
)

type fakeTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (f *fakeTracker) Track(event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event.(analytics.SearchEvent))
}

type fixture struct {
	engine  *indexer.Engine
	mux     *http.ServeMux
	tracker *fakeTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := schema.NewBuilder().AddTextField("title", true).AddFacetField("category").Build()
	require.NoError(t, err)
	e, err := indexer.NewEngine(config.IndexConfig{DataDir: t.TempDir(), SegmentMaxDocs: 2}, s)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	for _, d := range []schema.NamedDocument{
		{"title": {"Sea stories"}, "category": {"/cat/books"}},
		{"title": {"Sea charts"}, "category": {"/cat/maps"}},
		{"title": {"The sea around us"}, "category": {"/cat/books"}},
	} {
		require.NoError(t, e.IndexDocument(d))
	}
	require.NoError(t, e.Flush())

	pool := searcher.NewPool(e, searcher.Options{})
	t.Cleanup(pool.Close)
	tracker := &fakeTracker{}
	mux := http.NewServeMux()
	New(pool, nil, tracker, Options{DefaultLimit: 10, MaxResults: 50, Timeout: time.Second}).Register(mux)
	return &fixture{engine: e, mux: mux, tracker: tracker}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type searchBody struct {
	Count      uint64                            `json:"count"`
	Hits       []collector.Hit                   `json:"hits"`
	Facets     map[string][]collector.FacetEntry `json:"facets"`
	Generation uint64                            `json:"generation"`
	Degraded   []string                          `json:"degraded_fields"`
	Query      string                            `json:"query"`
	Error      string                            `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) searchBody {
	t.Helper()
	var body searchBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/search?q=sea&limit=2&facet="+url.QueryEscape("category:/cat/books"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, uint64(3), body.Count)
	assert.Len(t, body.Hits, 2)
	assert.Equal(t, []collector.FacetEntry{{Facet: "/cat/books", Count: 2}}, body.Facets["category"])
	assert.Equal(t, "sea", body.Query)
	assert.Equal(t, f.engine.Generation(), body.Generation)

	require.Len(t, f.tracker.events, 1)
	ev := f.tracker.events[0]
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, uint64(3), ev.Count)
	assert.Equal(t, []string{"category"}, ev.FacetFields)
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		target string
		want   int
	}{
		{"/api/v1/search", http.StatusBadRequest},
		{"/api/v1/search?q=sea&limit=0", http.StatusBadRequest},
		{"/api/v1/search?q=sea&limit=abc", http.StatusBadRequest},
		{"/api/v1/search?q=sea&facet=" + url.QueryEscape(":/x"), http.StatusBadRequest},
		{"/api/v1/search?q=sea&facet=" + url.QueryEscape("color:/red"), http.StatusBadRequest},
		{"/api/v1/search?q=" + url.QueryEscape("color:red"), http.StatusBadRequest},
		{"/api/v1/search?q=" + url.QueryEscape("AND OR"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := f.get(t, tc.target)
		assert.Equal(t, tc.want, rec.Code, tc.target)
		assert.NotEmpty(t, decode(t, rec).Error, tc.target)
	}
}

func TestSearchLimitIsCapped(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/search?q=sea&limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).Hits, 3)
}

func TestSearchDegradedFacet(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/search?q=sea&facet="+url.QueryEscape("category:books"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []string{"category"}, body.Degraded)
	assert.Empty(t, body.Facets["category"])
}

func TestSearchZeroResultEvent(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/search?q=kraken&facet=category")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Hits)
	require.Contains(t, body.Facets, "category")
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventZeroResult, f.tracker.events[0].Type)
}

func TestDocEndpoint(t *testing.T) {
	f := newFixture(t)
	search := decode(t, f.get(t, "/api/v1/search?q=stories"))
	require.Len(t, search.Hits, 1)
	addr := search.Hits[0].Address

	rec := f.get(t, fmt.Sprintf("/api/v1/docs/%d/%d?gen=%d", addr.SegmentOrd(), addr.DocID(), search.Generation))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc struct {
		Address    collector.DocAddress `json:"address"`
		Generation uint64               `json:"generation"`
		Fields     schema.NamedDocument `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, addr, doc.Address)
	assert.Equal(t, []string{"Sea stories"}, doc.Fields["title"])

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/docs/9/0").Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/docs/1/5").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/docs/x/0").Code)
	assert.Equal(t, http.StatusConflict, f.get(t, fmt.Sprintf("/api/v1/docs/0/0?gen=%d", search.Generation+10)).Code)
}

func TestInfoEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/searcher")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "Searcher(num_docs=3, num_segments=2)", info["searcher"])
	assert.Equal(t, 3.0, info["num_docs"])
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/cache/stats").Code)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseFacets(t *testing.T) {
	req, err := ParseFacets([]string{"category:/a", "category:/b", "color"})
	require.NoError(t, err)
	assert.Equal(t, searcher.FacetRequest{"category": {"/a", "/b"}, "color": {}}, req)

	req, err = ParseFacets(nil)
	require.NoError(t, err)
	assert.Nil(t, req)

	_, err = ParseFacets([]string{"category:"})
	assert.Error(t, err)
}
