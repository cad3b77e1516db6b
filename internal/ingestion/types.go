// Package ingestion turns raw input records into documents for the segment
// builder. Records arrive as JSON lines, HTTP bodies or Kafka messages and are
// validated against the index schema before they reach a Sink.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

// Values holds the values of one field. A JSON string decodes into a single
// value, a JSON array of strings into several.
type Values []string

func (v *Values) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*v = Values{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("field values must be a string or an array of strings")
	}
	*v = many
	return nil
}

// Record is one input document keyed by field name.
type Record map[string]Values

// Named converts the record into the form the schema parses.
func (r Record) Named() schema.NamedDocument {
	named := make(schema.NamedDocument, len(r))
	for name, vals := range r {
		named[name] = append([]string(nil), vals...)
	}
	return named
}

// IngestResponse is returned to HTTP callers once a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent is the Kafka payload carrying a document to the indexer.
type IngestEvent struct {
	DocumentID string               `json:"document_id"`
	Fields     schema.NamedDocument `json:"fields"`
	IngestedAt time.Time            `json:"ingested_at"`
}

// Sink receives validated documents.
type Sink interface {
	Add(ctx context.Context, doc schema.NamedDocument) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, doc schema.NamedDocument) error

func (f SinkFunc) Add(ctx context.Context, doc schema.NamedDocument) error {
	return f(ctx, doc)
}

// Indexer is the part of the segment builder a Sink writes through.
type Indexer interface {
	IndexDocument(doc schema.NamedDocument) error
}

// IndexInto returns a Sink that buffers documents in idx.
func IndexInto(idx Indexer) Sink {
	return SinkFunc(func(ctx context.Context, doc schema.NamedDocument) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return idx.IndexDocument(doc)
	})
}
