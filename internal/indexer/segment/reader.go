package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

// Reader gives read access to one immutable segment file. Readers are
// reference counted: the opener holds the first reference and every
// IncRef must be paired with a DecRef. The file is closed when the last
// reference is dropped.
type Reader struct {
	file      *os.File
	filePath  string
	header    SegmentHeader
	dict      []DictEntry
	norms     map[schema.Field][]uint32
	normTotal map[schema.Field]uint64
	facets    map[schema.Field]FacetColumn
	storeIdx  []StoreEntry
	decoder   *zstd.Decoder
	refs      atomic.Int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := openReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func openReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	dictBytes, err := readSection(f, header.Dict)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.Store.Offset+header.Store.Size); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != header.DocCount {
		return nil, fmt.Errorf("footer doc count does not match header")
	}

	r := &Reader{file: f, filePath: path, header: header}
	if err := json.Unmarshal(dictBytes, &r.dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if err := readJSON(f, header.Norms, &r.norms); err != nil {
		return nil, fmt.Errorf("reading field lengths: %w", err)
	}
	if err := readJSON(f, header.Facets, &r.facets); err != nil {
		return nil, fmt.Errorf("reading facet columns: %w", err)
	}
	for field, col := range r.facets {
		if err := col.Validate(header.DocCount); err != nil {
			return nil, fmt.Errorf("field %d: %w", field, err)
		}
	}
	if err := readJSON(f, header.StoreIdx, &r.storeIdx); err != nil {
		return nil, fmt.Errorf("reading store index: %w", err)
	}
	if uint32(len(r.storeIdx)) != header.DocCount {
		return nil, fmt.Errorf("store index has %d entries for %d documents", len(r.storeIdx), header.DocCount)
	}

	r.normTotal = make(map[schema.Field]uint64, len(r.norms))
	for field, lengths := range r.norms {
		var total uint64
		for _, l := range lengths {
			total += uint64(l)
		}
		r.normTotal[field] = total
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("creating store decoder: %w", err)
	}
	r.decoder = dec
	r.refs.Store(1)
	return r, nil
}

func readSection(f *os.File, s Section) ([]byte, error) {
	buf := make([]byte, s.Size)
	if _, err := f.ReadAt(buf, s.Offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func readJSON(f *os.File, s Section, v any) error {
	buf, err := readSection(f, s)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

func (r *Reader) lookup(field schema.Field, term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		e := r.dict[i]
		if e.Field != field {
			return e.Field > field
		}
		return e.Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Postings returns the postings of term in field. A term absent from the
// segment yields a nil list and no error.
func (r *Reader) Postings(field schema.Field, term string) (index.PostingList, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.Postings.Offset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", term, err)
	}
	return postings, nil
}

// DocFreq is the number of documents in this segment containing term.
func (r *Reader) DocFreq(field schema.Field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// FieldLength is the token count of field in document docID.
func (r *Reader) FieldLength(field schema.Field, docID uint32) uint32 {
	lengths := r.norms[field]
	if int(docID) >= len(lengths) {
		return 0
	}
	return lengths[docID]
}

// TotalFieldLength sums the token count of field over all documents.
func (r *Reader) TotalFieldLength(field schema.Field) uint64 {
	return r.normTotal[field]
}

// FacetColumn returns the per-document facet ordinals of field.
func (r *Reader) FacetColumn(field schema.Field) (FacetColumn, bool) {
	col, ok := r.facets[field]
	return col, ok
}

// Doc loads stored document docID.
func (r *Reader) Doc(docID uint32) (schema.Document, error) {
	if docID >= r.header.DocCount {
		return schema.Document{}, fmt.Errorf("document %d out of range for segment with %d documents", docID, r.header.DocCount)
	}
	entry := r.storeIdx[docID]
	compressed := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(compressed, r.header.Store.Offset+entry.Offset); err != nil {
		return schema.Document{}, fmt.Errorf("reading stored document: %w", err)
	}
	raw, err := r.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return schema.Document{}, fmt.Errorf("decompressing stored document: %w", err)
	}
	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return schema.Document{}, fmt.Errorf("parsing stored document: %w", err)
	}
	return doc, nil
}

// Header returns the decoded segment header.
func (r *Reader) Header() SegmentHeader {
	return r.header
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

// IncRef adds a reference. It reports false if the reader is already closed.
func (r *Reader) IncRef() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef drops a reference, closing the file when none remain.
func (r *Reader) DecRef() error {
	if r.refs.Add(-1) != 0 {
		return nil
	}
	r.decoder.Close()
	return r.file.Close()
}

// Close drops the opener's reference.
func (r *Reader) Close() error {
	return r.DecRef()
}
