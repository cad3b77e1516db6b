package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		AddTextField("title", true).
		AddFacetField("category").
		Build()
	require.NoError(t, err)
	return s
}

type recordingSink struct {
	docs []schema.NamedDocument
	err  error
}

func (r *recordingSink) Add(_ context.Context, doc schema.NamedDocument) error {
	if r.err != nil {
		return r.err
	}
	r.docs = append(r.docs, doc)
	return nil
}

func TestValuesAcceptStringOrArray(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Sea","category":["/a","/b/c"]}`), &rec))
	assert.Equal(t, schema.NamedDocument{"title": {"Sea"}, "category": {"/a", "/b/c"}}, rec.Named())

	assert.Error(t, json.Unmarshal([]byte(`{"title":42}`), &rec))
}

func TestLoadJSONLSkipsBadRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"title":"Sea stories","category":"/cat/books"}`,
		``,
		`not json`,
		`{"title":"Sea charts","category":"cat/maps"}`,
		`{"color":"red"}`,
		`{"title":"The sea around us"}`,
	}, "\n")
	sink := &recordingSink{}
	stats, err := LoadJSONL(context.Background(), strings.NewReader(input), testSchema(t), sink, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Lines: 6, Indexed: 2, Rejected: 3}, stats)
	require.Len(t, sink.docs, 2)
	assert.Equal(t, []string{"The sea around us"}, sink.docs[1]["title"])
}

func TestLoadJSONLStrict(t *testing.T) {
	input := "{\"title\":\"ok\"}\n{\"category\":\"nope\"}\n{\"title\":\"never\"}\n"
	sink := &recordingSink{}
	stats, err := LoadJSONL(context.Background(), strings.NewReader(input), testSchema(t), sink, LoadOptions{Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 1, stats.Indexed)
}

func TestLoadJSONLSinkFailure(t *testing.T) {
	boom := errors.New("disk full")
	sink := &recordingSink{err: boom}
	_, err := LoadJSONL(context.Background(), strings.NewReader(`{"title":"x"}`), testSchema(t), sink, LoadOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestLoadJSONLCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadJSONL(ctx, strings.NewReader(`{"title":"x"}`), testSchema(t), &recordingSink{}, LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeIndexer struct {
	docs int
}

func (f *fakeIndexer) IndexDocument(schema.NamedDocument) error {
	f.docs++
	return nil
}

func TestIndexInto(t *testing.T) {
	idx := &fakeIndexer{}
	sink := IndexInto(idx)
	require.NoError(t, sink.Add(context.Background(), schema.NamedDocument{"title": {"x"}}))
	assert.Equal(t, 1, idx.docs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Add(ctx, schema.NamedDocument{"title": {"y"}}), context.Canceled)
	assert.Equal(t, 1, idx.docs)
}
