package collector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
)

const category schema.Field = 1

type columns map[schema.Field]segment.FacetColumn

func (c columns) FacetColumn(f schema.Field) (segment.FacetColumn, bool) {
	col, ok := c[f]
	return col, ok
}

// column builds a facet column from per-document paths.
func column(docs ...[]string) segment.FacetColumn {
	ords := map[string]uint32{}
	var col segment.FacetColumn
	for _, paths := range docs {
		for _, p := range paths {
			if _, ok := ords[p]; !ok {
				ords[p] = uint32(len(col.Terms))
				col.Terms = append(col.Terms, p)
			}
		}
	}
	for _, paths := range docs {
		var d []uint32
		for _, p := range paths {
			d = append(d, ords[p])
		}
		col.Docs = append(col.Docs, d)
	}
	return col
}

func TestDocAddress(t *testing.T) {
	a := NewDocAddress(2, 7)
	assert.Equal(t, uint32(2), a.SegmentOrd())
	assert.Equal(t, uint32(7), a.DocID())
	assert.Equal(t, NewDocAddress(2, 7), a)
	assert.NotEqual(t, NewDocAddress(7, 2), a)

	seen := map[DocAddress]bool{a: true}
	assert.True(t, seen[NewDocAddress(2, 7)])

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `[2,7]`, string(data))

	var back DocAddress
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a, back)
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &back))
}

func TestFacetCollectorCountsChildren(t *testing.T) {
	fc := NewFacetCollector("category", category)
	fc.AddFacet(facet.MustParse("/cat"))
	fc.AddFacet(facet.MustParse("/cat/books"))
	fc.AddFacet(facet.MustParse("/cat"))

	cols := columns{category: column(
		[]string{"/cat/books"},
		[]string{"/cat/books/fiction", "/cat/books/poetry"},
		[]string{"/cat/maps"},
		[]string{"/other"},
		nil,
	)}
	m := NewMultiCollector(10, fc)
	sc, err := m.ForSegment(0, cols)
	require.NoError(t, err)
	for doc := uint32(0); doc < 5; doc++ {
		sc.Collect(doc, 1)
	}
	fruit := m.Merge([]SegmentFruit{sc.Harvest()})
	require.Len(t, fruit.Facets, 1)
	counts := fruit.Facets[0]
	assert.Equal(t, "category", counts.Field())

	// doc 1 has two facets below /cat/books but counts once toward it
	assert.Equal(t, []FacetEntry{
		{Facet: "/cat/books", Count: 2},
		{Facet: "/cat/maps", Count: 1},
	}, counts.Get(facet.MustParse("/cat")))
	assert.Equal(t, []FacetEntry{
		{Facet: "/cat/books", Count: 1},
		{Facet: "/cat/books/fiction", Count: 1},
		{Facet: "/cat/books/poetry", Count: 1},
	}, counts.Get(facet.MustParse("/cat/books")))
	assert.Nil(t, counts.Get(facet.MustParse("/other")))
}

func TestFacetCollectorWithoutPrefixes(t *testing.T) {
	fc := NewFacetCollector("category", category)
	m := NewMultiCollector(1, fc)
	sc, err := m.ForSegment(0, columns{category: column([]string{"/a"})})
	require.NoError(t, err)
	sc.Collect(0, 1)
	fruit := m.Merge([]SegmentFruit{sc.Harvest()})
	assert.Nil(t, fruit.Facets[0].Get(facet.MustParse("/a")))
	assert.Nil(t, fruit.Facets[0].Get(facet.Root()))
}

func TestFacetCollectorRootPrefix(t *testing.T) {
	fc := NewFacetCollector("category", category)
	fc.AddFacet(facet.Root())
	m := NewMultiCollector(1, fc)
	sc, err := m.ForSegment(0, columns{category: column([]string{"/a/x"}, []string{"/b"}, []string{"/a"})})
	require.NoError(t, err)
	for doc := uint32(0); doc < 3; doc++ {
		sc.Collect(doc, 1)
	}
	fruit := m.Merge([]SegmentFruit{sc.Harvest()})
	assert.Equal(t, []FacetEntry{{"/a", 2}, {"/b", 1}}, fruit.Facets[0].Get(facet.Root()))
}

func TestFacetCollectorRejectsCorruptColumn(t *testing.T) {
	fc := NewFacetCollector("category", category)
	fc.AddFacet(facet.Root())
	m := NewMultiCollector(1, fc)
	_, err := m.ForSegment(0, columns{category: column([]string{"not-a-path"})})
	assert.Error(t, err)
}

func TestFacetCollectorRejectsOutOfRangeOrdinal(t *testing.T) {
	fc := NewFacetCollector("category", category)
	fc.AddFacet(facet.Root())
	m := NewMultiCollector(1, fc)
	bad := segment.FacetColumn{Terms: []string{"/a"}, Docs: [][]uint32{{0, 7}}}
	_, err := m.ForSegment(0, columns{category: bad})
	assert.ErrorContains(t, err, "out of range")
}

func TestMergeOrderAndTieBreak(t *testing.T) {
	m := NewMultiCollector(4)

	seg1, err := m.ForSegment(1, columns{})
	require.NoError(t, err)
	seg1.Collect(0, 2)
	seg1.Collect(3, 5)

	seg0, err := m.ForSegment(0, columns{})
	require.NoError(t, err)
	seg0.Collect(4, 2)
	seg0.Collect(1, 2)
	seg0.Collect(2, 1)

	// fruits arrive out of segment order
	fruit := m.Merge([]SegmentFruit{seg1.Harvest(), seg0.Harvest()})
	assert.Equal(t, uint64(5), fruit.Count)
	assert.Equal(t, []Hit{
		{Score: 5, Address: NewDocAddress(1, 3)},
		{Score: 2, Address: NewDocAddress(0, 1)},
		{Score: 2, Address: NewDocAddress(0, 4)},
		{Score: 2, Address: NewDocAddress(1, 0)},
	}, fruit.Hits)
}

func TestMergeEmpty(t *testing.T) {
	m := NewMultiCollector(3)
	fruit := m.Merge(nil)
	assert.Zero(t, fruit.Count)
	assert.Empty(t, fruit.Hits)
	assert.Empty(t, fruit.Facets)
}
