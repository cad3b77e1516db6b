// Package publisher forwards validated documents to Kafka so that a separate
// indexer process can build segments from them. Documents are sent in
// batches keyed by a generated document ID.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/kafka"
)

const defaultBatchSize = 100

// Producer is the batch-publishing half of a Kafka producer.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher is an ingestion.Sink backed by Kafka.
type Publisher struct {
	producer  Producer
	batchSize int
	logger    *slog.Logger

	mu        sync.Mutex
	pending   []kafka.Event
	published int
}

// New creates a Publisher. A batchSize below one uses the default.
func New(producer Producer, batchSize int) *Publisher {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	return &Publisher{
		producer:  producer,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Add queues doc and publishes the batch once it is full.
func (p *Publisher) Add(ctx context.Context, doc schema.NamedDocument) error {
	_, err := p.Publish(ctx, doc)
	return err
}

// Publish queues doc and returns the ID it was assigned.
func (p *Publisher) Publish(ctx context.Context, doc schema.NamedDocument) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, kafka.Event{
		Key: id,
		Value: ingestion.IngestEvent{
			DocumentID: id,
			Fields:     doc,
			IngestedAt: time.Now().UTC(),
		},
	})
	if len(p.pending) < p.batchSize {
		return id, nil
	}
	return id, p.flushLocked(ctx)
}

// Flush publishes whatever is queued.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// Published reports how many documents reached Kafka.
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

func (p *Publisher) flushLocked(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	if err := p.producer.PublishBatch(ctx, p.pending); err != nil {
		return fmt.Errorf("publishing %d documents: %w", len(p.pending), err)
	}
	p.published += len(p.pending)
	p.logger.Debug("documents published", "count", len(p.pending))
	p.pending = nil
	return nil
}

// FlushEvery publishes queued documents on every tick until ctx is done,
// then publishes whatever is left.
func (p *Publisher) FlushEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Flush(shutdownCtx); err != nil {
				p.logger.Error("final publish failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("periodic publish failed, will retry", "error", err)
			}
		}
	}
}
