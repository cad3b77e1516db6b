package collector

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
)

// FacetColumns gives access to a segment's facet columns.
type FacetColumns interface {
	FacetColumn(field schema.Field) (segment.FacetColumn, bool)
}

// FacetCollector counts facet values of one field below a set of requested
// prefixes. For a document facet t and a prefix p, the document counts
// toward p itself when t == p, and toward the child of p on the path to t
// when t lies below p. A document counts at most once per key. With no
// prefixes registered the collector counts nothing.
type FacetCollector struct {
	name     string
	field    schema.Field
	prefixes []facet.Facet
}

func NewFacetCollector(name string, field schema.Field) *FacetCollector {
	return &FacetCollector{name: name, field: field}
}

// AddFacet registers a prefix. Registering the same prefix twice has no
// effect.
func (c *FacetCollector) AddFacet(prefix facet.Facet) {
	for _, p := range c.prefixes {
		if p == prefix {
			return
		}
	}
	c.prefixes = append(c.prefixes, prefix)
}

// Field is the name of the collected field.
func (c *FacetCollector) Field() string {
	return c.name
}

type facetKey struct {
	prefix int
	child  string
}

// facetSegment is the collector state for one segment. Facet ordinals are
// resolved to count slots once, up front.
type facetSegment struct {
	col     segment.FacetColumn
	ordKeys [][]int
	keys    []facetKey
	counts  []uint64
	lastDoc []int64
}

func (c *FacetCollector) forSegment(cols FacetColumns) (*facetSegment, error) {
	s := &facetSegment{}
	if len(c.prefixes) == 0 {
		return s, nil
	}
	col, ok := cols.FacetColumn(c.field)
	if !ok {
		return s, nil
	}
	if err := col.Validate(uint32(len(col.Docs))); err != nil {
		return nil, fmt.Errorf("facet column %q: %w", c.name, err)
	}
	s.col = col
	s.ordKeys = make([][]int, len(col.Terms))
	slots := make(map[facetKey]int)
	slot := func(k facetKey) int {
		if id, ok := slots[k]; ok {
			return id
		}
		id := len(s.keys)
		slots[k] = id
		s.keys = append(s.keys, k)
		return id
	}
	for ord, term := range col.Terms {
		value, err := facet.Parse(term)
		if err != nil {
			return nil, fmt.Errorf("facet column %q: %w", c.name, err)
		}
		for pi, p := range c.prefixes {
			if value == p {
				s.ordKeys[ord] = append(s.ordKeys[ord], slot(facetKey{pi, p.String()}))
			} else if child, ok := p.ChildToward(value); ok {
				s.ordKeys[ord] = append(s.ordKeys[ord], slot(facetKey{pi, child.String()}))
			}
		}
	}
	s.counts = make([]uint64, len(s.keys))
	s.lastDoc = make([]int64, len(s.keys))
	for i := range s.lastDoc {
		s.lastDoc[i] = -1
	}
	return s, nil
}

func (s *facetSegment) collect(doc uint32) {
	if len(s.keys) == 0 || int(doc) >= len(s.col.Docs) {
		return
	}
	for _, ord := range s.col.Docs[doc] {
		for _, id := range s.ordKeys[ord] {
			if s.lastDoc[id] == int64(doc) {
				continue
			}
			s.lastDoc[id] = int64(doc)
			s.counts[id]++
		}
	}
}

func (s *facetSegment) harvest() map[facetKey]uint64 {
	out := make(map[facetKey]uint64, len(s.keys))
	for id, n := range s.counts {
		if n > 0 {
			out[s.keys[id]] = n
		}
	}
	return out
}

// FacetEntry is one projected facet count.
type FacetEntry struct {
	Facet string `json:"facet"`
	Count uint64 `json:"count"`
}

// FacetCounts are the merged counts of one FacetCollector over all
// segments.
type FacetCounts struct {
	field    string
	prefixes []facet.Facet
	counts   []map[string]uint64
}

func newFacetCounts(c *FacetCollector) *FacetCounts {
	fc := &FacetCounts{
		field:    c.name,
		prefixes: append([]facet.Facet(nil), c.prefixes...),
		counts:   make([]map[string]uint64, len(c.prefixes)),
	}
	for i := range fc.counts {
		fc.counts[i] = make(map[string]uint64)
	}
	return fc
}

func (fc *FacetCounts) add(part map[facetKey]uint64) {
	for k, n := range part {
		fc.counts[k.prefix][k.child] += n
	}
}

func (fc *FacetCounts) Field() string {
	return fc.field
}

// Get returns the counts under prefix in ascending facet path order, or nil
// if prefix was not registered or nothing below it matched.
func (fc *FacetCounts) Get(prefix facet.Facet) []FacetEntry {
	for i, p := range fc.prefixes {
		if p != prefix {
			continue
		}
		if len(fc.counts[i]) == 0 {
			return nil
		}
		out := make([]FacetEntry, 0, len(fc.counts[i]))
		for child, n := range fc.counts[i] {
			out = append(out, FacetEntry{Facet: child, Count: n})
		}
		sort.Slice(out, func(a, b int) bool { return out[a].Facet < out[b].Facet })
		return out
	}
	return nil
}
