// Package searcher executes queries against a pinned index snapshot. One
// Search call traverses the matching documents once and returns the match
// count, the top hits and facet counts; documents are loaded separately
// through the addresses in the hits.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/tracing"
)

// FacetRequest maps a facet field name to the facet path prefixes whose
// children should be counted.
type FacetRequest map[string][]string

// SearchResult is the outcome of one search. Facets has an entry for every
// requested field. Hits are only valid against the snapshot named by
// Generation.
type SearchResult struct {
	Count          uint64                            `json:"count"`
	Hits           []collector.Hit                   `json:"hits"`
	Facets         map[string][]collector.FacetEntry `json:"facets"`
	Generation     uint64                            `json:"generation"`
	DegradedFields []string                          `json:"degraded_fields,omitempty"`
}

// Options configure searchers created by a Pool.
type Options struct {
	Parallelism  int
	DocCacheSize int
	StrictFacets bool
	Metrics      *metrics.Metrics
}

// Searcher runs queries against one immutable snapshot. It is safe for
// concurrent use.
type Searcher struct {
	snap     *indexer.Snapshot
	exec     *executor.Executor
	docs     *lru.Cache[collector.DocAddress, schema.NamedDocument]
	opts     Options
	numDocs  uint64
	refs     atomic.Int64
	released atomic.Bool
	logger   *slog.Logger
}

// New wraps snap. The searcher owns snap and releases it once every
// reference is dropped.
func New(snap *indexer.Snapshot, opts Options) *Searcher {
	s := &Searcher{
		snap:   snap,
		exec:   executor.New(opts.Parallelism),
		opts:   opts,
		logger: slog.Default().With("component", "searcher", "generation", snap.Generation),
	}
	if opts.DocCacheSize > 0 {
		s.docs, _ = lru.New[collector.DocAddress, schema.NamedDocument](opts.DocCacheSize)
	}
	for _, r := range snap.Segments {
		s.numDocs += uint64(r.DocCount())
	}
	s.refs.Store(1)
	return s
}

func (s *Searcher) incRef() {
	s.refs.Add(1)
}

func (s *Searcher) decRef() {
	if s.refs.Add(-1) == 0 && s.released.CompareAndSwap(false, true) {
		s.snap.Release()
	}
}

// Close drops the creator's reference.
func (s *Searcher) Close() {
	s.decRef()
}

// Search runs q and collects the limit best hits, the total match count and
// the facet counts named by facets. Request validation happens before any
// segment is read. A traversal failure yields a ScanError and no result.
func (s *Searcher) Search(ctx context.Context, q *query.Query, limit int, facets FacetRequest) (*SearchResult, error) {
	log := logger.FromContext(ctx).With("component", "searcher", "generation", s.snap.Generation)

	if limit <= 0 {
		s.countOutcome("invalid")
		return nil, &InvalidLimitError{Limit: limit}
	}
	start := time.Now()
	_, span := tracing.StartChildSpan(ctx, "search.validate")
	plan, err := s.planFacets(facets)
	span.End()
	if err != nil {
		s.countOutcome("invalid")
		return nil, err
	}
	s.observePhase("validate", start)

	start = time.Now()
	scanCtx, span := tracing.StartChildSpan(ctx, "search.scan")
	mc := collector.NewMultiCollector(limit, plan.collectors...)
	fruit, stats, err := s.exec.Execute(scanCtx, q.Weight(s.snap.Segments), s.snap.Segments, mc)
	span.SetAttr("segments", len(s.snap.Segments))
	span.End()
	if err != nil {
		var segErr *executor.SegmentError
		switch {
		case errors.As(err, &segErr):
			s.countOutcome("scan_error")
			log.Error("search traversal failed", "segment", segErr.Segment, "error", segErr.Err)
			return nil, &ScanError{SegmentOrd: segErr.Ord, Segment: segErr.Segment, Err: segErr.Err}
		case ctx.Err() != nil:
			s.countOutcome("cancelled")
			return nil, ctx.Err()
		default:
			s.countOutcome("scan_error")
			return nil, fmt.Errorf("executing search: %w", err)
		}
	}
	s.observePhase("scan", start)

	start = time.Now()
	_, span = tracing.StartChildSpan(ctx, "search.project")
	result := &SearchResult{
		Count:          fruit.Count,
		Hits:           fruit.Hits,
		Facets:         project(plan, fruit),
		Generation:     s.snap.Generation,
		DegradedFields: plan.degraded,
	}
	span.End()
	s.observePhase("project", start)

	if m := s.opts.Metrics; m != nil {
		m.SearchMatchCount.Observe(float64(result.Count))
		m.SearchFacetFields.Observe(float64(len(facets)))
		m.SegmentsScanned.Observe(float64(stats.Segments))
	}
	if result.Count == 0 {
		s.countOutcome("zero_result")
	} else {
		s.countOutcome("ok")
	}
	log.Debug("search executed",
		"query", q.String(),
		"limit", limit,
		"count", result.Count,
		"hits", len(result.Hits),
		"facet_fields", len(facets),
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return result, nil
}

// facetPlan is a validated FacetRequest.
type facetPlan struct {
	fields     []string
	collectors []*collector.FacetCollector
	prefixes   map[string][]facet.Facet
	degraded   []string
}

func (s *Searcher) planFacets(req FacetRequest) (*facetPlan, error) {
	plan := &facetPlan{prefixes: make(map[string][]facet.Facet, len(req))}
	for name := range req {
		plan.fields = append(plan.fields, name)
	}
	sort.Strings(plan.fields)

	sch := s.snap.Schema
	for _, name := range plan.fields {
		field, ok := sch.GetField(name)
		if !ok {
			return nil, &FieldNotFoundError{Field: name, Reason: "not defined in the schema"}
		}
		if t := sch.Entry(field).Type; t != schema.TypeFacet {
			return nil, &FieldNotFoundError{Field: name, Reason: fmt.Sprintf("field has type %s, not facet", t)}
		}
	}

	for _, name := range plan.fields {
		field, _ := sch.GetField(name)
		fc := collector.NewFacetCollector(name, field)
		prefixes, err := parsePrefixes(req[name])
		if err != nil {
			if s.opts.StrictFacets {
				return nil, &InvalidFacetError{Field: name, Facet: err.raw, Err: err.err}
			}
			s.logger.Warn("ignoring facet field with malformed prefix",
				"field", name,
				"facet", err.raw,
				"error", err.err,
			)
			plan.degraded = append(plan.degraded, name)
			prefixes = nil
		}
		for _, p := range prefixes {
			fc.AddFacet(p)
		}
		plan.prefixes[name] = prefixes
		plan.collectors = append(plan.collectors, fc)
	}
	return plan, nil
}

type prefixError struct {
	raw string
	err error
}

// parsePrefixes parses raw in order, dropping duplicates.
func parsePrefixes(raw []string) ([]facet.Facet, *prefixError) {
	out := make([]facet.Facet, 0, len(raw))
	seen := make(map[facet.Facet]struct{}, len(raw))
	for _, r := range raw {
		f, err := facet.Parse(r)
		if err != nil {
			return nil, &prefixError{raw: r, err: err}
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// NumDocs is the number of documents visible to this searcher.
func (s *Searcher) NumDocs() uint64 {
	return s.numDocs
}

func (s *Searcher) NumSegments() int {
	return len(s.snap.Segments)
}

// Generation names the snapshot this searcher reads.
func (s *Searcher) Generation() uint64 {
	return s.snap.Generation
}

func (s *Searcher) Schema() *schema.Schema {
	return s.snap.Schema
}

func (s *Searcher) String() string {
	return fmt.Sprintf("Searcher(num_docs=%d, num_segments=%d)", s.numDocs, len(s.snap.Segments))
}

// Doc loads the stored fields of the document at addr.
func (s *Searcher) Doc(addr collector.DocAddress) (schema.NamedDocument, error) {
	if int(addr.SegmentOrd()) >= len(s.snap.Segments) {
		s.countFetch("invalid_address")
		return nil, &InvalidAddressError{
			Address: addr,
			Reason:  fmt.Sprintf("segment ordinal out of range, searcher has %d segments", len(s.snap.Segments)),
		}
	}
	r := s.snap.Segments[addr.SegmentOrd()]
	if addr.DocID() >= r.DocCount() {
		s.countFetch("invalid_address")
		return nil, &InvalidAddressError{
			Address: addr,
			Reason:  fmt.Sprintf("doc id out of range, segment has %d documents", r.DocCount()),
		}
	}
	if s.docs != nil {
		if doc, ok := s.docs.Get(addr); ok {
			if m := s.opts.Metrics; m != nil {
				m.DocCacheHitsTotal.Inc()
			}
			s.countFetch("ok")
			return cloneDoc(doc), nil
		}
	}
	stored, err := r.Doc(addr.DocID())
	if err != nil {
		s.countFetch("storage_error")
		s.logger.Error("stored document unreadable", "address", addr.String(), "segment", r.Name(), "error", err)
		return nil, &StorageError{Address: addr, Err: err}
	}
	doc := s.snap.Schema.ToNamedDoc(stored)
	if s.docs != nil {
		s.docs.Add(addr, cloneDoc(doc))
	}
	s.countFetch("ok")
	return doc, nil
}

func cloneDoc(doc schema.NamedDocument) schema.NamedDocument {
	out := make(schema.NamedDocument, len(doc))
	for k, v := range doc {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DocAt is Doc for a raw (segment ordinal, local doc id) pair.
func (s *Searcher) DocAt(segmentOrd, docID uint32) (schema.NamedDocument, error) {
	return s.Doc(collector.NewDocAddress(segmentOrd, docID))
}

func (s *Searcher) countOutcome(outcome string) {
	if m := s.opts.Metrics; m != nil {
		m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Searcher) countFetch(outcome string) {
	if m := s.opts.Metrics; m != nil {
		m.DocFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Searcher) observePhase(phase string, start time.Time) {
	if m := s.opts.Metrics; m != nil {
		m.SearchLatency.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}
