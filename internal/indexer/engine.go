// Package indexer owns a segment directory: it builds immutable segments
// from documents and hands out ref-counted snapshots of the segments that
// are currently open for reading.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

// LockFileName guards a data directory against concurrent writers.
const LockFileName = ".writer.lock"

type Engine struct {
	cfg      config.IndexConfig
	schema   *schema.Schema
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	lock     *flock.Flock
	logger   *slog.Logger

	flushMu sync.Mutex
	// bufMu is held shared while a document is buffered and exclusively
	// from the memory snapshot until the buffer is reset.
	bufMu   sync.RWMutex
	nextSeq uint64
	onFlush []func(FlushInfo)

	readerMu   sync.RWMutex
	readers    []*segment.Reader
	generation uint64
	closed     bool
}

// NewEngine opens dataDir for writing. The schema is persisted on first use;
// an existing directory must carry the same schema. Only one writer may hold
// a directory at a time.
func NewEngine(cfg config.IndexConfig, s *schema.Schema) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.DataDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring writer lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index %s is locked by another writer", cfg.DataDir)
	}

	existing, err := schema.Load(cfg.DataDir)
	switch {
	case err == nil:
		if !sameSchema(existing, s) {
			lock.Unlock()
			return nil, fmt.Errorf("index %s was built with a different schema", cfg.DataDir)
		}
	case errors.Is(err, os.ErrNotExist):
		if err := s.Save(cfg.DataDir); err != nil {
			lock.Unlock()
			return nil, err
		}
	default:
		lock.Unlock()
		return nil, err
	}

	w, err := segment.NewWriter(cfg.DataDir)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		schema:   s,
		memIndex: index.NewMemoryIndex(s),
		writer:   w,
		lock:     lock,
		logger:   slog.Default().With("component", "indexer"),
	}
	if _, err := e.ReloadSegments(); err != nil {
		e.Close()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// OpenReadOnly opens an existing index for searching. New segments written
// by a builder become visible after ReloadSegments.
func OpenReadOnly(cfg config.IndexConfig) (*Engine, error) {
	s, err := schema.Load(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", cfg.DataDir, err)
	}
	e := &Engine{
		cfg:    cfg,
		schema: s,
		logger: slog.Default().With("component", "indexer"),
	}
	if _, err := e.ReloadSegments(); err != nil {
		e.Close()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// IndexDocument buffers doc and flushes a segment once SegmentMaxDocs
// documents are buffered.
func (e *Engine) IndexDocument(named schema.NamedDocument) error {
	if e.writer == nil {
		return fmt.Errorf("index opened read-only")
	}
	doc, err := e.schema.ParseDocument(named)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	e.bufMu.RLock()
	localID := e.memIndex.AddDocument(doc)
	e.bufMu.RUnlock()
	e.logger.Debug("document indexed in memory",
		"local_id", localID,
		"mem_size", e.memIndex.Size(),
	)
	if e.memIndex.DocCount() >= e.cfg.SegmentMaxDocs {
		e.logger.Info("memory index reached max docs, flushing to disk",
			"docs", e.memIndex.DocCount(),
			"threshold", e.cfg.SegmentMaxDocs,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// FlushInfo describes one flushed segment.
type FlushInfo struct {
	Segment    string
	Docs       int
	Terms      int
	Generation uint64
	Duration   time.Duration
}

// OnFlush registers fn to run after every successful flush. It must be
// called before documents are indexed.
func (e *Engine) OnFlush(fn func(FlushInfo)) {
	e.onFlush = append(e.onFlush, fn)
}

// Flush writes the buffered documents as a new segment and makes it visible
// to subsequent snapshots.
func (e *Engine) Flush() error {
	if e.writer == nil {
		return nil
	}
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	start := time.Now()
	segmentName, err := e.writeBuffered()
	if err != nil || segmentName == "" {
		return err
	}

	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.generation++
	gen := e.generation
	active := len(e.readers)
	e.readerMu.Unlock()

	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	info := FlushInfo{
		Segment:    segmentName,
		Docs:       int(reader.DocCount()),
		Terms:      reader.Terms(),
		Generation: gen,
		Duration:   time.Since(start),
	}
	for _, fn := range e.onFlush {
		fn(info)
	}
	return nil
}

// writeBuffered writes the memory index as the next segment and resets it.
// Documents cannot be added in between. It returns "" when nothing is
// buffered; on error the buffer is kept.
func (e *Engine) writeBuffered() (string, error) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	data := e.memIndex.Snapshot()
	if data.DocCount == 0 {
		return "", nil
	}
	name, err := e.writer.Write(e.nextSeq, data)
	if err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	e.nextSeq++
	e.memIndex.Reset()
	return name, nil
}

// Snapshot pins a set of segment readers. Segment ordinals are positions in
// Segments. Release must be called exactly once; extra calls are no-ops.
type Snapshot struct {
	Generation uint64
	Schema     *schema.Schema
	Segments   []*segment.Reader
	once       sync.Once
}

func (s *Snapshot) Release() {
	s.once.Do(func() {
		for _, r := range s.Segments {
			r.DecRef()
		}
	})
}

// Acquire returns a snapshot of the currently open segments.
func (e *Engine) Acquire() (*Snapshot, error) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	if e.closed {
		return nil, apperrors.ErrIndexClosed
	}
	snap := &Snapshot{
		Generation: e.generation,
		Schema:     e.schema,
		Segments:   make([]*segment.Reader, 0, len(e.readers)),
	}
	for _, r := range e.readers {
		if !r.IncRef() {
			snap.Release()
			return nil, fmt.Errorf("segment %s closed while acquiring snapshot", r.Name())
		}
		snap.Segments = append(snap.Segments, r)
	}
	return snap, nil
}

// Generation increments every time the set of open segments changes.
func (e *Engine) Generation() uint64 {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return e.generation
}

func (e *Engine) NumSegments() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

// ReloadSegments synchronises the open readers with the segment files on
// disk. It reports whether the set changed.
func (e *Engine) ReloadSegments() (bool, error) {
	names, err := listSegments(e.cfg.DataDir)
	if err != nil {
		return false, err
	}

	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	if e.closed {
		return false, apperrors.ErrIndexClosed
	}

	open := make(map[string]*segment.Reader, len(e.readers))
	for _, r := range e.readers {
		open[r.Name()] = r
	}
	wanted := make(map[string]struct{}, len(names))
	next := make([]*segment.Reader, 0, len(names))
	changed := false
	for _, name := range names {
		wanted[name] = struct{}{}
		if seq, ok := parseSeq(name); ok && seq >= e.nextSeq {
			e.nextSeq = seq + 1
		}
		if r, ok := open[name]; ok {
			next = append(next, r)
			continue
		}
		r, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.logger.Info("loaded segment",
			"segment", name,
			"terms", r.Terms(),
			"docs", r.DocCount(),
		)
		next = append(next, r)
		changed = true
	}
	for name, r := range open {
		if _, ok := wanted[name]; !ok {
			e.logger.Info("segment removed", "segment", name)
			r.Close()
			changed = true
		}
	}
	e.readers = next
	if changed {
		e.generation++
	}
	return changed, nil
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.writer == nil || e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

// Close flushes buffered documents, drops the engine's reader references and
// releases the writer lock. Outstanding snapshots stay readable until
// released.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	if e.writer != nil {
		e.writer.Close()
	}
	if e.lock != nil {
		return e.lock.Unlock()
	}
	return nil
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseSeq(name string) (uint64, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(name, "seg_"), segment.Extension)
	seq, err := strconv.ParseUint(s, 10, 64)
	return seq, err == nil
}

func sameSchema(a, b *schema.Schema) bool {
	if a.NumFields() != b.NumFields() {
		return false
	}
	for _, f := range a.Fields() {
		if a.Entry(f) != b.Entry(f) {
			return false
		}
	}
	return true
}
