// Package executor drives one traversal of a snapshot: it evaluates a query
// weight on every segment and feeds each match to the segment's collector.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/query"
)

// checkEvery is how many documents are collected between context checks.
const checkEvery = 4096

// SegmentError reports the segment whose traversal failed.
type SegmentError struct {
	Ord     uint32
	Segment string
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d (%s): %v", e.Ord, e.Segment, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Stats describes a completed traversal.
type Stats struct {
	Segments int
	Matched  uint64
	Duration time.Duration
}

type Executor struct {
	parallelism int
	logger      *slog.Logger
}

// New creates an executor scanning at most parallelism segments at once.
func New(parallelism int) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Executor{
		parallelism: parallelism,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Execute runs w over segments and returns the merged collector output.
// Any segment failure or context cancellation aborts the whole traversal;
// no partial result is returned.
func (e *Executor) Execute(
	ctx context.Context,
	w *query.Weight,
	segments []*segment.Reader,
	mc *collector.MultiCollector,
) (*collector.MultiFruit, Stats, error) {
	start := time.Now()
	fruits := make([]collector.SegmentFruit, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for ord, r := range segments {
		g.Go(func() error {
			fruit, err := collectSegment(gctx, w, uint32(ord), r, mc)
			if err != nil {
				return &SegmentError{Ord: uint32(ord), Segment: r.Name(), Err: err}
			}
			fruits[ord] = fruit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, Stats{}, ctx.Err()
		}
		return nil, Stats{}, err
	}

	result := mc.Merge(fruits)
	stats := Stats{Segments: len(segments), Matched: result.Count, Duration: time.Since(start)}
	e.logger.Debug("traversal complete",
		"segments", stats.Segments,
		"matched", stats.Matched,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return result, stats, nil
}

func collectSegment(
	ctx context.Context,
	w *query.Weight,
	ord uint32,
	r *segment.Reader,
	mc *collector.MultiCollector,
) (collector.SegmentFruit, error) {
	if err := ctx.Err(); err != nil {
		return collector.SegmentFruit{}, err
	}
	sc, err := mc.ForSegment(ord, r)
	if err != nil {
		return collector.SegmentFruit{}, err
	}
	set, err := w.Evaluate(r)
	if err != nil {
		return collector.SegmentFruit{}, err
	}
	it := set.Iterator()
	n := 0
	for doc, score, ok := it.Next(); ok; doc, score, ok = it.Next() {
		sc.Collect(doc, score)
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return collector.SegmentFruit{}, err
			}
		}
	}
	return sc.Harvest(), nil
}
