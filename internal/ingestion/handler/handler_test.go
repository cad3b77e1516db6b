package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
)

type fakeFlusher struct {
	calls int
	err   error
}

func (f *fakeFlusher) Flush() error {
	f.calls++
	return f.err
}

func newMux(t *testing.T, sink ingestion.Sink, flusher Flusher) *http.ServeMux {
	t.Helper()
	s, err := schema.NewBuilder().AddTextField("title", true).AddFacetField("category").Build()
	require.NoError(t, err)
	mux := http.NewServeMux()
	New(s, sink, flusher).Register(mux)
	return mux
}

func post(mux *http.ServeMux, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func TestIngest(t *testing.T) {
	var got []schema.NamedDocument
	sink := ingestion.SinkFunc(func(_ context.Context, doc schema.NamedDocument) error {
		got = append(got, doc)
		return nil
	})
	mux := newMux(t, sink, nil)

	rec := post(mux, "/api/v1/documents", `{"title":"Sea stories","category":["/cat/books"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp ingestion.IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.DocumentID)
	assert.Equal(t, "accepted", resp.Status)
	require.Len(t, got, 1)

	rec = post(mux, "/api/v1/documents", `{"category":"books"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body["fields"], "category")

	assert.Equal(t, http.StatusBadRequest, post(mux, "/api/v1/documents", `{`).Code)
	assert.Len(t, got, 1)
}

func TestIngestSinkFailure(t *testing.T) {
	sink := ingestion.SinkFunc(func(context.Context, schema.NamedDocument) error {
		return errors.New("boom")
	})
	rec := post(newMux(t, sink, nil), "/api/v1/documents", `{"title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFlush(t *testing.T) {
	noop := ingestion.SinkFunc(func(context.Context, schema.NamedDocument) error { return nil })
	assert.Equal(t, http.StatusServiceUnavailable, post(newMux(t, noop, nil), "/api/v1/flush", "").Code)

	f := &fakeFlusher{}
	mux := newMux(t, noop, f)
	assert.Equal(t, http.StatusOK, post(mux, "/api/v1/flush", "").Code)
	assert.Equal(t, 1, f.calls)

	f.err = errors.New("disk full")
	assert.Equal(t, http.StatusInternalServerError, post(mux, "/api/v1/flush", "").Code)
}

func TestSchemaEndpoint(t *testing.T) {
	noop := ingestion.SinkFunc(func(context.Context, schema.NamedDocument) error { return nil })
	rec := httptest.NewRecorder()
	newMux(t, noop, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category"`)
}
