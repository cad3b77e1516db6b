package collector

import (
	"encoding/json"
	"fmt"
)

// DocAddress identifies a document within one searcher's fixed segment
// list. It is meaningless against any other snapshot. Two addresses are
// equal when both fields are equal, so DocAddress can be used as a map key.
type DocAddress struct {
	segmentOrd uint32
	docID      uint32
}

func NewDocAddress(segmentOrd, docID uint32) DocAddress {
	return DocAddress{segmentOrd: segmentOrd, docID: docID}
}

// SegmentOrd is the position of the segment in the searcher's segment list.
func (a DocAddress) SegmentOrd() uint32 {
	return a.segmentOrd
}

// DocID is the document's id local to its segment.
func (a DocAddress) DocID() uint32 {
	return a.docID
}

func (a DocAddress) String() string {
	return fmt.Sprintf("%d/%d", a.segmentOrd, a.docID)
}

// MarshalJSON encodes the address as [segment_ord, doc_id].
func (a DocAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{a.segmentOrd, a.docID})
}

func (a *DocAddress) UnmarshalJSON(data []byte) error {
	var pair []uint32
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("document address must be [segment_ord, doc_id]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("document address must have 2 elements, got %d", len(pair))
	}
	a.segmentOrd, a.docID = pair[0], pair[1]
	return nil
}

// Hit is one ranked match.
type Hit struct {
	Score   float32    `json:"score"`
	Address DocAddress `json:"address"`
}

// rankBefore orders hits by descending score, then ascending segment
// ordinal, then ascending local doc id.
func rankBefore(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Address.segmentOrd != b.Address.segmentOrd {
		return a.Address.segmentOrd < b.Address.segmentOrd
	}
	return a.Address.docID < b.Address.docID
}
