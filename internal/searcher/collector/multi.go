// Package collector accumulates search results during a single traversal of
// the matching documents: the total count, the top-N hits and facet counts.
//
// The set of collectors is fixed. A MultiCollector hands out one
// SegmentCollector per segment; segments may be collected concurrently and
// their fruits are merged in segment order, so the outcome never depends on
// scheduling. Results are only reachable through the merged MultiFruit.
package collector

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/merger"
)

type MultiCollector struct {
	limit  int
	facets []*FacetCollector
}

// NewMultiCollector counts all matches, keeps the limit best hits, and runs
// each facet collector.
func NewMultiCollector(limit int, facets ...*FacetCollector) *MultiCollector {
	return &MultiCollector{limit: limit, facets: facets}
}

// SegmentCollector receives the matches of one segment. It is not safe for
// concurrent use.
type SegmentCollector struct {
	ord    uint32
	count  uint64
	top    *merger.TopN[Hit]
	facets []*facetSegment
}

// ForSegment prepares collection for segment ord.
func (m *MultiCollector) ForSegment(ord uint32, cols FacetColumns) (*SegmentCollector, error) {
	sc := &SegmentCollector{
		ord: ord,
		top: merger.NewTopN(m.limit, rankBefore),
	}
	for _, fc := range m.facets {
		fs, err := fc.forSegment(cols)
		if err != nil {
			return nil, err
		}
		sc.facets = append(sc.facets, fs)
	}
	return sc, nil
}

// Collect records one matching document.
func (s *SegmentCollector) Collect(doc uint32, score float32) {
	s.count++
	s.top.Push(Hit{Score: score, Address: DocAddress{segmentOrd: s.ord, docID: doc}})
	for _, fs := range s.facets {
		fs.collect(doc)
	}
}

// Harvest ends collection for the segment.
func (s *SegmentCollector) Harvest() SegmentFruit {
	fruit := SegmentFruit{ord: s.ord, count: s.count, hits: s.top.Sorted()}
	for _, fs := range s.facets {
		fruit.facets = append(fruit.facets, fs.harvest())
	}
	return fruit
}

// SegmentFruit is the partial result of one segment.
type SegmentFruit struct {
	ord    uint32
	count  uint64
	hits   []Hit
	facets []map[facetKey]uint64
}

// MultiFruit is the merged result of a completed traversal. Facets holds one
// entry per facet collector, in registration order.
type MultiFruit struct {
	Count  uint64
	Hits   []Hit
	Facets []*FacetCounts
}

// Merge combines segment fruits. Fruits are processed in segment order
// regardless of the order they are passed in.
func (m *MultiCollector) Merge(fruits []SegmentFruit) *MultiFruit {
	ordered := append([]SegmentFruit(nil), fruits...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ord < ordered[j].ord })

	out := &MultiFruit{Facets: make([]*FacetCounts, len(m.facets))}
	for i, fc := range m.facets {
		out.Facets[i] = newFacetCounts(fc)
	}
	hitLists := make([][]Hit, 0, len(ordered))
	for _, f := range ordered {
		out.Count += f.count
		hitLists = append(hitLists, f.hits)
		for i, part := range f.facets {
			out.Facets[i].add(part)
		}
	}
	out.Hits = merger.Merge(hitLists, m.limit, rankBefore)
	return out
}
