// Package handler exposes the searcher over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/tracing"
)

// SearcherPool leases searchers for the duration of a call.
type SearcherPool interface {
	Do(ctx context.Context, fn func(ctx context.Context, s *searcher.Searcher) error) error
}

// Tracker receives analytics events.
type Tracker interface {
	Track(event any)
}

type Options struct {
	DefaultLimit int
	MaxResults   int
	Timeout      time.Duration
}

type Handler struct {
	pool    SearcherPool
	cache   *cache.QueryCache
	tracker Tracker
	opts    Options
	logger  *slog.Logger
}

// New builds a Handler. queryCache and tracker may be nil.
func New(pool SearcherPool, queryCache *cache.QueryCache, tracker Tracker, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	return &Handler{
		pool:    pool,
		cache:   queryCache,
		tracker: tracker,
		opts:    opts,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/docs/{segment}/{doc}", h.Doc)
	mux.HandleFunc("GET /api/v1/searcher", h.Info)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchOutcome struct {
	result   *searcher.SearchResult
	cacheHit bool
}

type searchResponse struct {
	*searcher.SearchResult
	Query    string `json:"query"`
	CacheHit bool   `json:"cache_hit"`
	TookMs   int64  `json:"took_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	defer func() {
		span.End()
		span.Log()
	}()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	raw := strings.TrimSpace(params.Get("q"))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	plan := parser.Parse(raw)
	if plan.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, "query has no terms or filters")
		return
	}
	limit, err := h.parseLimit(params.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	facets, err := ParseFacets(params["facet"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The search may outlive a timeout, so results cross back atomically.
	var out atomic.Pointer[searchOutcome]
	err = resilience.WithTimeout(ctx, h.opts.Timeout, "search", func(ctx context.Context) error {
		return h.pool.Do(ctx, func(ctx context.Context, s *searcher.Searcher) error {
			q, err := query.Compile(plan, s.Schema())
			if err != nil {
				return err
			}
			compute := func() (*searcher.SearchResult, error) {
				return s.Search(ctx, q, limit, facets)
			}
			var o searchOutcome
			if h.cache == nil {
				o.result, err = compute()
			} else {
				key := cache.Key{Generation: s.Generation(), Query: raw, Limit: limit, Facets: facets}
				o.result, o.cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
			}
			if err == nil {
				out.Store(&o)
			}
			return err
		})
	})
	var (
		result   *searcher.SearchResult
		cacheHit bool
	)
	if o := out.Load(); err == nil && o != nil {
		result, cacheHit = o.result, o.cacheHit
	}
	latency := time.Since(start)
	h.track(ctx, raw, limit, facets, result, cacheHit, latency, err)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "query", raw, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}

	log.Info("search completed",
		"query", raw,
		"count", result.Count,
		"returned", len(result.Hits),
		"generation", result.Generation,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		SearchResult: result,
		Query:        raw,
		CacheHit:     cacheHit,
		TookMs:       latency.Milliseconds(),
	})
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > h.opts.MaxResults {
		n = h.opts.MaxResults
	}
	return n, nil
}

// ParseFacets reads repeated facet parameters of the form "field:/prefix".
// A bare "field" requests the field with no prefixes. Path syntax is left to
// the searcher.
func ParseFacets(values []string) (searcher.FacetRequest, error) {
	if len(values) == 0 {
		return nil, nil
	}
	req := make(searcher.FacetRequest, len(values))
	for _, v := range values {
		field, prefix, hasPrefix := strings.Cut(v, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("facet %q: missing field name", v)
		}
		if _, ok := req[field]; !ok {
			req[field] = []string{}
		}
		if hasPrefix {
			if prefix == "" {
				return nil, fmt.Errorf("facet %q: empty prefix", v)
			}
			req[field] = append(req[field], prefix)
		}
	}
	return req, nil
}

type docResponse struct {
	Address    collector.DocAddress `json:"address"`
	Generation uint64               `json:"generation"`
	Fields     schema.NamedDocument `json:"fields"`
}

func (h *Handler) Doc(w http.ResponseWriter, r *http.Request) {
	seg, err := strconv.ParseUint(r.PathValue("segment"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "segment must be a non-negative integer")
		return
	}
	doc, err := strconv.ParseUint(r.PathValue("doc"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "doc must be a non-negative integer")
		return
	}
	var wantGen uint64
	if raw := r.URL.Query().Get("gen"); raw != "" {
		if wantGen, err = strconv.ParseUint(raw, 10, 64); err != nil {
			h.writeError(w, http.StatusBadRequest, "gen must be a non-negative integer")
			return
		}
	}

	addr := collector.NewDocAddress(uint32(seg), uint32(doc))
	var resp docResponse
	err = h.pool.Do(r.Context(), func(ctx context.Context, s *searcher.Searcher) error {
		if wantGen != 0 && wantGen != s.Generation() {
			return &staleGenerationError{want: wantGen, have: s.Generation()}
		}
		fields, err := s.Doc(addr)
		if err != nil {
			return err
		}
		resp = docResponse{Address: addr, Generation: s.Generation(), Fields: fields}
		return nil
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("document fetch failed", "address", addr.String(), "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type staleGenerationError struct {
	want, have uint64
}

func (e *staleGenerationError) Error() string {
	return fmt.Sprintf("address belongs to generation %d, searcher is at %d; repeat the search", e.want, e.have)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	var info map[string]any
	err := h.pool.Do(r.Context(), func(ctx context.Context, s *searcher.Searcher) error {
		info = map[string]any{
			"num_docs":     s.NumDocs(),
			"num_segments": s.NumSegments(),
			"generation":   s.Generation(),
			"searcher":     s.String(),
		}
		return nil
	})
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) track(ctx context.Context, raw string, limit int, facets searcher.FacetRequest,
	result *searcher.SearchResult, cacheHit bool, latency time.Duration, err error) {
	if h.tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Type:        analytics.EventSearch,
		Query:       raw,
		Limit:       limit,
		FacetFields: facetFields(facets),
		LatencyMs:   latency.Milliseconds(),
		CacheHit:    cacheHit,
		Timestamp:   time.Now().UTC(),
		RequestID:   middleware.GetRequestID(ctx),
	}
	switch {
	case err != nil:
		event.Type = analytics.EventFailed
		event.Error = err.Error()
	default:
		event.Count = result.Count
		event.Returned = len(result.Hits)
		event.Generation = result.Generation
		event.DegradedFields = result.DegradedFields
		if result.Count == 0 {
			event.Type = analytics.EventZeroResult
		}
	}
	h.tracker.Track(event)
}

func facetFields(facets searcher.FacetRequest) []string {
	out := make([]string, 0, len(facets))
	for name := range facets {
		out = append(out, name)
	}
	return out
}

// statusFor maps search and fetch errors to HTTP status codes.
func statusFor(err error) int {
	var stale *staleGenerationError
	switch {
	case errors.As(err, &stale):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidAddress):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrFieldNotFound),
		errors.Is(err, apperrors.ErrInvalidLimit),
		errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrIndexClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
