// Package query compiles a parsed QueryPlan against a schema and evaluates
// it segment by segment. Evaluation yields a DocSet: the matching local doc
// ids of one segment as a roaring bitmap, plus their BM25 scores.
package query

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
)

// ConstantScore is the score of documents matched without any scoring term.
const ConstantScore float32 = 1.0

type termClause struct {
	fields []schema.Field
	term   string
}

type facetClause struct {
	field schema.Field
	path  facet.Facet
}

// Query is a compiled, schema-resolved query. It is immutable and may be
// shared by concurrent searches.
type Query struct {
	raw            string
	typ            parser.QueryType
	terms          []termClause
	excludes       []termClause
	filters        []facetClause
	excludeFilters []facetClause
	matchAll       bool
}

// Compile resolves every field named in plan. Unknown fields and clauses
// that do not fit their field type are rejected.
func Compile(plan *parser.QueryPlan, s *schema.Schema) (*Query, error) {
	q := &Query{raw: plan.RawQuery, typ: plan.Type, matchAll: plan.MatchAll}
	var err error
	if q.terms, err = compileTerms(plan.Terms, s); err != nil {
		return nil, err
	}
	if q.excludes, err = compileTerms(plan.ExcludeTerms, s); err != nil {
		return nil, err
	}
	if q.filters, err = compileFilters(plan.Filters, s); err != nil {
		return nil, err
	}
	if q.excludeFilters, err = compileFilters(plan.ExcludeFilters, s); err != nil {
		return nil, err
	}
	return q, nil
}

// MatchAll returns a query matching every document with a constant score.
func MatchAll() *Query {
	return &Query{raw: "*", matchAll: true}
}

func compileTerms(clauses []parser.Clause, s *schema.Schema) ([]termClause, error) {
	out := make([]termClause, 0, len(clauses))
	for _, c := range clauses {
		if c.Field == "" {
			out = append(out, termClause{fields: s.TextFields(), term: c.Term})
			continue
		}
		f, ok := s.GetField(c.Field)
		if !ok {
			return nil, fmt.Errorf("%w: query field %q", apperrors.ErrFieldNotFound, c.Field)
		}
		if s.Entry(f).Type != schema.TypeText {
			return nil, fmt.Errorf("%w: field %q is not a text field; filter facets with %s:/path",
				apperrors.ErrInvalidInput, c.Field, c.Field)
		}
		out = append(out, termClause{fields: []schema.Field{f}, term: c.Term})
	}
	return out, nil
}

func compileFilters(filters []parser.FacetFilter, s *schema.Schema) ([]facetClause, error) {
	out := make([]facetClause, 0, len(filters))
	for _, fl := range filters {
		f, ok := s.GetField(fl.Field)
		if !ok {
			return nil, fmt.Errorf("%w: query field %q", apperrors.ErrFieldNotFound, fl.Field)
		}
		if s.Entry(f).Type != schema.TypeFacet {
			return nil, fmt.Errorf("%w: field %q is not a facet field", apperrors.ErrInvalidInput, fl.Field)
		}
		path, err := facet.Parse(fl.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		out = append(out, facetClause{field: f, path: path})
	}
	return out, nil
}

func (q *Query) String() string {
	return q.raw
}

// Weight binds a query to the statistics of one snapshot.
type Weight struct {
	q       *Query
	weights map[index.TermKey]ranker.TermWeight
}

// Weight gathers document frequencies and field lengths across all
// segments so that scores do not depend on how documents are split into
// segments.
func (q *Query) Weight(segments []*segment.Reader) *Weight {
	var totalDocs int64
	for _, r := range segments {
		totalDocs += int64(r.DocCount())
	}
	stats := make(map[schema.Field]ranker.FieldStats)
	w := &Weight{q: q, weights: make(map[index.TermKey]ranker.TermWeight)}
	for _, c := range q.terms {
		for _, f := range c.fields {
			key := index.TermKey{Field: f, Term: c.term}
			if _, done := w.weights[key]; done {
				continue
			}
			fs, ok := stats[f]
			if !ok {
				var tokens uint64
				for _, r := range segments {
					tokens += r.TotalFieldLength(f)
				}
				fs = ranker.NewFieldStats(totalDocs, tokens)
				stats[f] = fs
			}
			var docFreq int64
			for _, r := range segments {
				docFreq += int64(r.DocFreq(f, c.term))
			}
			w.weights[key] = ranker.NewTermWeight(fs, docFreq)
		}
	}
	return w
}

// Evaluate computes the matching documents of one segment.
func (w *Weight) Evaluate(r *segment.Reader) (*DocSet, error) {
	q := w.q
	n := r.DocCount()
	set := &DocSet{}

	var matched *roaring.Bitmap
	if len(q.terms) > 0 {
		set.scores = make([]float32, n)
		for i, c := range q.terms {
			docs, err := w.scoreTerm(r, c, set.scores)
			if err != nil {
				return nil, err
			}
			switch {
			case i == 0:
				matched = docs
			case q.typ == parser.QueryOR:
				matched.Or(docs)
			default:
				matched.And(docs)
			}
		}
	}

	useAll := matched == nil && (q.matchAll || len(q.filters) > 0 ||
		len(q.excludes) > 0 || len(q.excludeFilters) > 0)
	if q.matchAll && q.typ == parser.QueryOR {
		useAll = true
	}
	if useAll {
		all := roaring.New()
		all.AddRange(0, uint64(n))
		matched = all
	}
	if matched == nil {
		matched = roaring.New()
	}

	for _, f := range q.filters {
		matched.And(facetDocs(r, f))
	}
	for _, c := range q.excludes {
		docs, err := termDocs(r, c)
		if err != nil {
			return nil, err
		}
		matched.AndNot(docs)
	}
	for _, f := range q.excludeFilters {
		matched.AndNot(facetDocs(r, f))
	}
	set.docs = matched
	return set, nil
}

func (w *Weight) scoreTerm(r *segment.Reader, c termClause, scores []float32) (*roaring.Bitmap, error) {
	docs := roaring.New()
	for _, f := range c.fields {
		postings, err := r.Postings(f, c.term)
		if err != nil {
			return nil, err
		}
		tw := w.weights[index.TermKey{Field: f, Term: c.term}]
		for _, p := range postings {
			if p.DocID >= uint32(len(scores)) {
				return nil, fmt.Errorf("posting for %q references document %d beyond segment size %d",
					c.term, p.DocID, len(scores))
			}
			docs.Add(p.DocID)
			scores[p.DocID] += tw.Score(p.Frequency, r.FieldLength(f, p.DocID))
		}
	}
	return docs, nil
}

func termDocs(r *segment.Reader, c termClause) (*roaring.Bitmap, error) {
	docs := roaring.New()
	for _, f := range c.fields {
		postings, err := r.Postings(f, c.term)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			docs.Add(p.DocID)
		}
	}
	return docs, nil
}

// facetDocs returns the documents with a facet equal to or below c.path.
func facetDocs(r *segment.Reader, c facetClause) *roaring.Bitmap {
	docs := roaring.New()
	col, ok := r.FacetColumn(c.field)
	if !ok {
		return docs
	}
	prefix := c.path.String()
	wanted := make(map[uint32]struct{})
	for ord, term := range col.Terms {
		if c.path.IsRoot() || term == prefix || strings.HasPrefix(term, prefix+"/") {
			wanted[uint32(ord)] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return docs
	}
	for doc, ords := range col.Docs {
		for _, o := range ords {
			if _, hit := wanted[o]; hit {
				docs.Add(uint32(doc))
				break
			}
		}
	}
	return docs
}

// DocSet holds the matches of one segment.
type DocSet struct {
	docs   *roaring.Bitmap
	scores []float32
}

// Len is the number of matching documents.
func (d *DocSet) Len() uint64 {
	return d.docs.GetCardinality()
}

// Iterator walks the matches in ascending local doc id order.
func (d *DocSet) Iterator() *Iterator {
	return &Iterator{it: d.docs.Iterator(), scores: d.scores}
}

type Iterator struct {
	it     roaring.IntPeekable
	scores []float32
}

// Next returns the next match; ok is false once the set is exhausted.
func (it *Iterator) Next() (doc uint32, score float32, ok bool) {
	if !it.it.HasNext() {
		return 0, 0, false
	}
	doc = it.it.Next()
	if it.scores == nil {
		return doc, ConstantScore, true
	}
	return doc, it.scores[doc], true
}
