package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

type fixture struct {
	schema   *schema.Schema
	title    schema.Field
	body     schema.Field
	category schema.Field
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := schema.NewBuilder().
		AddTextField("title", true).
		AddTextField("body", false).
		AddFacetField("category").
		Build()
	require.NoError(t, err)
	f := fixture{schema: s}
	f.title, _ = s.GetField("title")
	f.body, _ = s.GetField("body")
	f.category, _ = s.GetField("category")
	return f
}

func (f fixture) data() index.SegmentData {
	m := index.NewMemoryIndex(f.schema)
	m.AddDocument(schema.Document{Values: []schema.FieldValue{
		{Field: f.title, Value: "The Old Man and the Sea"},
		{Field: f.body, Value: "an old fisherman and the sea"},
		{Field: f.category, Value: "/cat/books"},
	}})
	m.AddDocument(schema.Document{Values: []schema.FieldValue{
		{Field: f.title, Value: "Sea charts"},
		{Field: f.category, Value: "/cat/maps"},
		{Field: f.category, Value: "/cat/books/nautical"},
	}})
	return m.Snapshot()
}

func writeSegment(t *testing.T, f fixture) (string, *Reader) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	name, err := w.Write(7, f.data())
	require.NoError(t, err)
	assert.Equal(t, "seg_000000000007.spdx", name)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	return filepath.Join(dir, name), r
}

func TestWriteAndRead(t *testing.T) {
	f := newFixture(t)
	_, r := writeSegment(t, f)
	defer r.Close()

	assert.Equal(t, uint32(2), r.DocCount())
	assert.Positive(t, r.Terms())

	postings, err := r.Postings(f.title, "sea")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, uint32(0), postings[0].DocID)
	assert.Equal(t, uint32(1), postings[1].DocID)
	assert.Equal(t, 2, r.DocFreq(f.title, "sea"))

	// same term, different field
	postings, err = r.Postings(f.body, "sea")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	missing, err := r.Postings(f.title, "whale")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Zero(t, r.DocFreq(f.title, "whale"))

	assert.Equal(t, uint32(3), r.FieldLength(f.title, 0))
	assert.Equal(t, uint32(2), r.FieldLength(f.title, 1))
	assert.Equal(t, uint64(5), r.TotalFieldLength(f.title))
}

func TestFacetColumn(t *testing.T) {
	f := newFixture(t)
	_, r := writeSegment(t, f)
	defer r.Close()

	col, ok := r.FacetColumn(f.category)
	require.True(t, ok)
	assert.Equal(t, []string{"/cat/books", "/cat/books/nautical", "/cat/maps"}, col.Terms)
	require.Len(t, col.Docs, 2)
	assert.Equal(t, []uint32{0}, col.Docs[0])
	assert.Equal(t, []uint32{1, 2}, col.Docs[1])

	_, ok = r.FacetColumn(f.title)
	assert.False(t, ok)
}

func TestStoredDocuments(t *testing.T) {
	f := newFixture(t)
	_, r := writeSegment(t, f)
	defer r.Close()

	doc, err := r.Doc(1)
	require.NoError(t, err)
	named := f.schema.ToNamedDoc(doc)
	assert.Equal(t, []string{"Sea charts"}, named["title"])
	assert.Equal(t, []string{"/cat/maps", "/cat/books/nautical"}, named["category"])
	assert.NotContains(t, named, "body")

	_, err = r.Doc(2)
	assert.Error(t, err)
}

func TestOpenRejectsCorruptDictionary(t *testing.T) {
	f := newFixture(t)
	path, r := writeSegment(t, f)
	dict := r.Header().Dict
	require.NoError(t, r.Close())

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = file.WriteAt([]byte("##"), dict.Offset+1)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0644))
	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "magic")
}

func TestWriteRejectsEmptySegment(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Write(1, index.SegmentData{})
	assert.Error(t, err)
}

func TestRefCounting(t *testing.T) {
	f := newFixture(t)
	_, r := writeSegment(t, f)

	require.True(t, r.IncRef())
	require.NoError(t, r.Close())

	// the extra reference keeps the file open
	_, err := r.Doc(0)
	require.NoError(t, err)

	require.NoError(t, r.DecRef())
	assert.False(t, r.IncRef())
	_, err = r.Doc(0)
	assert.Error(t, err)
}
