package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/tokenizer"
)

// MemoryIndex buffers documents until they are written out as a segment.
// Documents receive dense local ids in insertion order.
type MemoryIndex struct {
	mu           sync.RWMutex
	schema       *schema.Schema
	index        map[TermKey][]Posting
	fieldLengths map[schema.Field][]uint32
	facets       map[schema.Field][][]string
	stored       []schema.Document
	docCount     uint32
	size         int64
}

func NewMemoryIndex(s *schema.Schema) *MemoryIndex {
	m := &MemoryIndex{schema: s}
	m.resetLocked()
	return m
}

// AddDocument indexes doc and returns its local id.
func (m *MemoryIndex) AddDocument(doc schema.Document) uint32 {
	termData := make(map[TermKey]*Posting)
	lengths := make(map[schema.Field]uint32)
	facets := make(map[schema.Field][]string)
	var stored schema.Document

	for _, fv := range doc.Values {
		entry := m.schema.Entry(fv.Field)
		if entry.Stored {
			stored.Values = append(stored.Values, fv)
		}
		switch entry.Type {
		case schema.TypeFacet:
			facets[fv.Field] = append(facets[fv.Field], fv.Value)
		case schema.TypeText:
			tokens := tokenizer.Tokenize(fv.Value)
			base := int(lengths[fv.Field])
			for _, token := range tokens {
				key := TermKey{Field: fv.Field, Term: token.Term}
				p, exists := termData[key]
				if !exists {
					p = &Posting{Positions: make([]int, 0, 4)}
					termData[key] = p
				}
				p.Frequency++
				p.Positions = append(p.Positions, base+token.Position)
			}
			lengths[fv.Field] += uint32(len(tokens))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docID := m.docCount
	for key, posting := range termData {
		posting.DocID = docID
		m.index[key] = append(m.index[key], *posting)
		m.size += int64(len(key.Term) + len(posting.Positions)*8 + 32)
	}
	for _, f := range m.schema.Fields() {
		switch m.schema.Entry(f).Type {
		case schema.TypeText:
			m.fieldLengths[f] = append(m.fieldLengths[f], lengths[f])
		case schema.TypeFacet:
			paths := facets[f]
			sort.Strings(paths)
			m.facets[f] = append(m.facets[f], paths)
			for _, p := range paths {
				m.size += int64(len(p))
			}
		}
	}
	m.stored = append(m.stored, stored)
	for _, v := range stored.Values {
		m.size += int64(len(v.Value) + 8)
	}
	m.docCount++
	return docID
}

// Search returns the postings of term in field, sorted by local doc id.
func (m *MemoryIndex) Search(field schema.Field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings, exists := m.index[TermKey{Field: field, Term: term}]
	if !exists {
		return nil
	}
	result := make(PostingList, len(postings))
	copy(result, postings)
	return result
}

// Snapshot returns the buffered documents in segment form. Terms are sorted
// by field, then term.
func (m *MemoryIndex) Snapshot() SegmentData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, postings := range m.index {
		pl := make(PostingList, len(postings))
		copy(pl, postings)
		entries = append(entries, TermEntry{
			Field:    key.Field,
			Term:     key.Term,
			Postings: pl,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
	data := SegmentData{
		DocCount:     m.docCount,
		Terms:        entries,
		FieldLengths: make(map[schema.Field][]uint32, len(m.fieldLengths)),
		Facets:       make(map[schema.Field][][]string, len(m.facets)),
		Stored:       append([]schema.Document(nil), m.stored...),
	}
	for f, lengths := range m.fieldLengths {
		data.FieldLengths[f] = append([]uint32(nil), lengths...)
	}
	for f, docs := range m.facets {
		data.Facets[f] = append([][]string(nil), docs...)
	}
	return data
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.docCount)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MemoryIndex) resetLocked() {
	m.index = make(map[TermKey][]Posting)
	m.fieldLengths = make(map[schema.Field][]uint32)
	m.facets = make(map[schema.Field][][]string)
	m.stored = nil
	m.docCount = 0
	m.size = 0
}
