package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/kafka"
)

type fakeProducer struct {
	batches [][]kafka.Event
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestPublisherBatches(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, 2)
	ctx := context.Background()
	doc := schema.NamedDocument{"title": {"Sea"}}

	require.NoError(t, p.Add(ctx, doc))
	assert.Empty(t, prod.batches)
	id, err := p.Publish(ctx, doc)
	require.NoError(t, err)
	require.Len(t, prod.batches, 1)
	assert.Len(t, prod.batches[0], 2)

	last := prod.batches[0][1]
	assert.Equal(t, id, last.Key)
	event := last.Value.(ingestion.IngestEvent)
	assert.Equal(t, id, event.DocumentID)
	assert.Equal(t, doc, event.Fields)

	require.NoError(t, p.Add(ctx, doc))
	require.NoError(t, p.Flush(ctx))
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, prod.batches, 2)
	assert.Equal(t, 3, p.Published())
}

func TestPublisherKeepsPendingOnFailure(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	p := New(prod, 0)
	ctx := context.Background()
	require.NoError(t, p.Add(ctx, schema.NamedDocument{"title": {"x"}}))
	assert.Error(t, p.Flush(ctx))

	prod.err = nil
	require.NoError(t, p.Flush(ctx))
	require.Len(t, prod.batches, 1)
	assert.Len(t, prod.batches[0], 1)
}

func TestFlushEveryDrainsOnCancel(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod, 100)
	require.NoError(t, p.Add(context.Background(), schema.NamedDocument{"title": {"x"}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.FlushEvery(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done
	assert.Equal(t, 1, p.Published())
}
