package searcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

// SnapshotSource hands out snapshots of an index.
type SnapshotSource interface {
	Acquire() (*indexer.Snapshot, error)
	Generation() uint64
}

// Pool shares one Searcher per index generation among callers. When the
// index reloads, the next Acquire builds a searcher over the new snapshot;
// the previous one stays valid until its last lease is released.
type Pool struct {
	source SnapshotSource
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *Searcher
	closed  bool
}

func NewPool(source SnapshotSource, opts Options) *Pool {
	return &Pool{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "searcher-pool"),
	}
}

// Lease pins a Searcher. Release returns it; calling Release more than once
// is harmless.
type Lease struct {
	searcher *Searcher
	pool     *Pool
	once     sync.Once
}

// Searcher returns the leased searcher. It must not be used after Release.
func (l *Lease) Searcher() *Searcher {
	return l.searcher
}

func (l *Lease) Release() {
	l.once.Do(func() {
		l.searcher.decRef()
		if m := l.pool.opts.Metrics; m != nil {
			m.ActiveLeases.Dec()
		}
	})
}

// Acquire leases the searcher for the current index generation.
func (p *Pool) Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, apperrors.ErrIndexClosed
	}
	if p.current == nil || p.current.Generation() != p.source.Generation() {
		if err := p.refreshLocked(); err != nil {
			return nil, err
		}
	}
	p.current.incRef()
	if m := p.opts.Metrics; m != nil {
		m.ActiveLeases.Inc()
	}
	return &Lease{searcher: p.current, pool: p}, nil
}

func (p *Pool) refreshLocked() error {
	snap, err := p.source.Acquire()
	if err != nil {
		return err
	}
	next := New(snap, p.opts)
	if p.current != nil {
		p.current.decRef()
	}
	p.current = next
	p.logger.Info("searcher refreshed",
		"generation", snap.Generation,
		"segments", next.NumSegments(),
		"docs", next.NumDocs(),
	)
	if m := p.opts.Metrics; m != nil {
		m.SnapshotGeneration.Set(float64(snap.Generation))
		m.SnapshotSegments.Set(float64(next.NumSegments()))
		m.SnapshotDocs.Set(float64(next.NumDocs()))
	}
	return nil
}

// Do runs fn with a leased searcher and releases the lease when fn
// returns, whether or not it fails.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, s *Searcher) error) error {
	lease, err := p.Acquire()
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(ctx, lease.Searcher())
}

// Close drops the pool's reference to its current searcher. Outstanding
// leases remain usable until released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.current != nil {
		p.current.decRef()
		p.current = nil
	}
}
