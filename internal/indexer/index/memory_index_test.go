package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

func TestMemoryIndexAddAndSnapshot(t *testing.T) {
	s, err := schema.NewBuilder().
		AddTextField("title", true).
		AddTextField("body", false).
		AddFacetField("category").
		Build()
	require.NoError(t, err)
	title, _ := s.GetField("title")
	body, _ := s.GetField("body")
	category, _ := s.GetField("category")

	m := NewMemoryIndex(s)
	first := m.AddDocument(schema.Document{Values: []schema.FieldValue{
		{Field: title, Value: "Sea stories"},
		{Field: body, Value: "the sea and the sea"},
		{Field: category, Value: "/cat/books"},
	}})
	second := m.AddDocument(schema.Document{Values: []schema.FieldValue{
		{Field: title, Value: "Mountains"},
		{Field: category, Value: "/cat/maps"},
		{Field: category, Value: "/cat/books"},
	}})
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(1), second)
	assert.Equal(t, 2, m.DocCount())
	assert.Positive(t, m.Size())

	postings := m.Search(body, "sea")
	require.Len(t, postings, 1)
	assert.Equal(t, 2, postings[0].Frequency)
	assert.Empty(t, m.Search(body, "mountain"))

	snap := m.Snapshot()
	assert.Equal(t, uint32(2), snap.DocCount)
	assert.Equal(t, []uint32{2, 0}, snap.FieldLengths[body])
	assert.Equal(t, [][]string{{"/cat/books"}, {"/cat/books", "/cat/maps"}}, snap.Facets[category])
	require.Len(t, snap.Stored, 2)
	// body is not stored
	assert.Len(t, snap.Stored[0].Values, 2)

	for i := 1; i < len(snap.Terms); i++ {
		prev, cur := snap.Terms[i-1], snap.Terms[i]
		assert.True(t, prev.Field < cur.Field || (prev.Field == cur.Field && prev.Term < cur.Term))
	}

	m.Reset()
	assert.Equal(t, 0, m.DocCount())
	assert.Empty(t, m.Snapshot().Terms)
}
