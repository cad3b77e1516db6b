// Package consumer indexes documents published to Kafka by the ingestion
// publisher.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/kafka"
)

// Stats counts what the handler did with the messages it saw.
type Stats struct {
	Indexed  atomic.Int64
	Rejected atomic.Int64
}

// HandleMessage returns a Kafka MessageHandler that validates every ingest
// event against s and adds it to sink. Undecodable or invalid events are
// logged and acknowledged so they cannot block the partition; sink failures
// are returned and the message is retried.
func HandleMessage(s *schema.Schema, sink ingestion.Sink, stats *Stats) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			reject(stats)
			return nil
		}
		if err := validator.ValidateDocument(s, event.Fields); err != nil {
			var verr *validator.ValidationError
			if errors.As(err, &verr) {
				logger.Warn("rejecting invalid document", "doc_id", event.DocumentID, "fields", verr.Fields)
				reject(stats)
				return nil
			}
			return err
		}
		if err := sink.Add(ctx, event.Fields); err != nil {
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}
		if stats != nil {
			stats.Indexed.Add(1)
		}
		logger.Debug("document indexed", "doc_id", event.DocumentID)
		return nil
	}
}

func reject(stats *Stats) {
	if stats != nil {
		stats.Rejected.Add(1)
	}
}
