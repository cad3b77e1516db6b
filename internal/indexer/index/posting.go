package index

import "github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"

// Posting records one document's occurrences of a term. DocID is local to
// the segment the posting belongs to.
type Posting struct {
	DocID     uint32 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

// PostingList is sorted by ascending DocID.
type PostingList []Posting

// TermKey addresses a term within one field.
type TermKey struct {
	Field schema.Field
	Term  string
}

type TermEntry struct {
	Field    schema.Field
	Term     string
	Postings PostingList
}

// SegmentData is everything needed to write one immutable segment.
type SegmentData struct {
	DocCount uint32
	Terms    []TermEntry
	// FieldLengths holds, per text field, the token count of every document.
	FieldLengths map[schema.Field][]uint32
	// Facets holds, per facet field, the facet paths of every document.
	Facets map[schema.Field][][]string
	Stored []schema.Document
}
