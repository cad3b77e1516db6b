package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
)

const testSchemaJSON = `{"fields":[
  {"name":"title","type":"text","stored":true},
  {"name":"category","type":"facet","stored":true}
]}`

const testDocs = `{"title":"Sea stories","category":"/cat/books"}
{"title":"Sea charts","category":"/cat/maps"}
{"title":"The sea around us","category":["/cat/books"]}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func buildIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema-in.json")
	inputPath := filepath.Join(dir, "docs.jsonl")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchemaJSON), 0644))
	require.NoError(t, os.WriteFile(inputPath, []byte(testDocs), 0644))

	dataDir := filepath.Join(dir, "index")
	out, err := run(t, "build", inputPath, "--schema", schemaPath, "--segment-docs", "2", "-d", dataDir)
	require.NoError(t, err)
	assert.Equal(t, "indexed 3, rejected 0, 2 new segments\n", out)
	return dataDir
}

func TestBuildAndSearch(t *testing.T) {
	dataDir := buildIndex(t)

	out, err := run(t, "search", "sea", "-d", dataDir, "-f", "category:/cat", "--format", "json")
	require.NoError(t, err)
	var res searcher.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint64(3), res.Count)
	assert.Len(t, res.Hits, 3)
	assert.Equal(t, []collector.FacetEntry{
		{Facet: "/cat/books", Count: 2},
		{Facet: "/cat/maps", Count: 1},
	}, res.Facets["category"])
}

func TestSearchTextOutput(t *testing.T) {
	dataDir := buildIndex(t)
	out, err := run(t, "search", "stories", "-d", dataDir, "--show", "title", "-f", "category:cat")
	require.NoError(t, err)
	assert.Contains(t, out, "1 matching documents")
	assert.Contains(t, out, `title="Sea stories"`)
	assert.Contains(t, out, "skipped malformed facet prefixes for: category")

	_, err = run(t, "search", "stories", "-d", dataDir, "-f", "category:cat", "--strict-facets")
	assert.Error(t, err)
}

func TestDocAndInfo(t *testing.T) {
	dataDir := buildIndex(t)

	out, err := run(t, "doc", "0", "0", "-d", dataDir)
	require.NoError(t, err)
	var doc map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []string{"Sea stories"}, doc["title"])

	_, err = run(t, "doc", "7", "0", "-d", dataDir)
	assert.Error(t, err)

	out, err = run(t, "info", "-d", dataDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Searcher(num_docs=3, num_segments=2)"), out)
	assert.Contains(t, out, "field category")
}

func TestBuildRejectsWithoutSchema(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "docs.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(testDocs), 0644))
	_, err := run(t, "build", input, "-d", filepath.Join(dir, "empty"))
	assert.Error(t, err)
}
