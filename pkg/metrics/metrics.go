// Package metrics defines the Prometheus collectors of the search service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchMatchCount     prometheus.Histogram
	SearchFacetFields    prometheus.Histogram
	SegmentsScanned      prometheus.Histogram
	DocFetchesTotal      *prometheus.CounterVec
	DocCacheHitsTotal    prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	ActiveLeases         prometheus.Gauge
	SnapshotGeneration   prometheus.Gauge
	SnapshotSegments     prometheus.Gauge
	SnapshotDocs         prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (ok, zero_result, invalid, scan_error, cancelled).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by phase (validate, scan, project).",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"phase"},
		),
		SearchMatchCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_match_count",
				Help:    "Number of matching documents per search.",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
			},
		),
		SearchFacetFields: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_facet_fields",
				Help:    "Number of facet fields requested per search.",
				Buckets: []float64{0, 1, 2, 4, 8},
			},
		),
		SegmentsScanned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_segments_scanned",
				Help:    "Number of segments traversed per search.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		DocFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doc_fetches_total",
				Help: "Stored document fetches by outcome (ok, invalid_address, storage_error).",
			},
			[]string{"outcome"},
		),
		DocCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "doc_cache_hits_total",
				Help: "Stored document fetches served from the per-snapshot cache.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ActiveLeases: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_active_leases",
				Help: "Number of searcher leases currently held.",
			},
		),
		SnapshotGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_snapshot_generation",
				Help: "Generation of the snapshot new searches run against.",
			},
		),
		SnapshotSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_snapshot_segments",
				Help: "Number of segments in the current snapshot.",
			},
		),
		SnapshotDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_snapshot_docs",
				Help: "Number of documents in the current snapshot.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchMatchCount,
		m.SearchFacetFields,
		m.SegmentsScanned,
		m.DocFetchesTotal,
		m.DocCacheHitsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.ActiveLeases,
		m.SnapshotGeneration,
		m.SnapshotSegments,
		m.SnapshotDocs,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
