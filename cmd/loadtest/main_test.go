package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(1), percentile(lat, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestRunLoadTest(t *testing.T) {
	var searches, docs atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		switch {
		case r.URL.Path == "/api/v1/search":
			searches.Add(1)
			assert.Equal(t, []string{"category:/cat"}, r.URL.Query()["facet"])
			w.Write([]byte(`{"cache_hit":true,"generation":3,"hits":[{"score":1,"address":[0,1]}]}`))
		case strings.HasPrefix(r.URL.Path, "/api/v1/docs/0/1"):
			docs.Add(1)
			assert.Equal(t, "3", r.URL.Query().Get("gen"))
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stats := runLoadTest(ctx, Config{
		BaseURL:     srv.URL,
		APIKey:      "k",
		Concurrency: 2,
		Limit:       5,
		Queries:     []string{"sea"},
		Facets:      []string{"category:/cat"},
		FetchDocs:   true,
	})

	require.Positive(t, stats.totalRequests.Load())
	assert.Equal(t, stats.totalRequests.Load(), stats.successCount.Load())
	assert.Equal(t, stats.successCount.Load(), stats.cacheHits.Load())
	assert.Positive(t, stats.docFetches.Load())

	var out bytes.Buffer
	assert.True(t, printReport(&out, stats, 200*time.Millisecond))
	assert.Contains(t, out.String(), "Cache Hit Rate:  100.00%")
	assert.Contains(t, out.String(), "  200: ")
}

func TestPrintReportEmpty(t *testing.T) {
	var out bytes.Buffer
	assert.False(t, printReport(&out, NewStats(), time.Second))
	assert.Contains(t, out.String(), "No requests completed")
}
