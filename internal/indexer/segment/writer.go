package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 128
	FooterSize    int    = 8
	Extension            = ".spdx"
)

// Section locates one region of a segment file.
type Section struct {
	Offset int64
	Size   int64
}

// SegmentHeader is the fixed-size header written at the start of every
// segment. Sections are, in file order: postings, dictionary, field lengths,
// facet columns, store index, store.
type SegmentHeader struct {
	Magic     uint32
	Version   uint32
	TermCount uint32
	DocCount  uint32
	CreatedAt int64
	Postings  Section
	Dict      Section
	Norms     Section
	Facets    Section
	StoreIdx  Section
	Store     Section
}

// DictEntry maps a field term to its postings offset, length, and document
// frequency in the segment file.
type DictEntry struct {
	Field      schema.Field `json:"f"`
	Term       string       `json:"t"`
	PostOffset int64        `json:"o"`
	PostLen    int          `json:"l"`
	DocFreq    int          `json:"d"`
}

// FacetColumn stores the facet values of one field for every document as
// ordinals into the sorted Terms table.
type FacetColumn struct {
	Terms []string   `json:"terms"`
	Docs  [][]uint32 `json:"docs"`
}

// Validate checks that every ordinal names a term and that no more than
// docCount documents are listed.
func (c FacetColumn) Validate(docCount uint32) error {
	if uint64(len(c.Docs)) > uint64(docCount) {
		return fmt.Errorf("facet column lists %d documents, segment has %d", len(c.Docs), docCount)
	}
	for doc, ords := range c.Docs {
		for _, ord := range ords {
			if int(ord) >= len(c.Terms) {
				return fmt.Errorf("doc %d: facet ordinal %d out of range (%d terms)", doc, ord, len(c.Terms))
			}
		}
	}
	return nil
}

// StoreEntry locates one compressed stored document.
type StoreEntry struct {
	Offset int64 `json:"o"`
	Len    int   `json:"l"`
}

// Writer serialises SegmentData into new .spdx segment files.
type Writer struct {
	dataDir string
	encoder *zstd.Encoder
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) (*Writer, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating store encoder: %w", err)
	}
	return &Writer{dataDir: dataDir, encoder: enc}, nil
}

// FileName returns the file name of the segment with sequence number seq.
// Names sort in sequence order.
func FileName(seq uint64) string {
	return fmt.Sprintf("seg_%012d%s", seq, Extension)
}

// Write atomically creates segment seq from data. It writes to a .tmp file
// first and renames on success, so readers never observe a partial segment.
func (w *Writer) Write(seq uint64, data index.SegmentData) (string, error) {
	if data.DocCount == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := FileName(seq)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}

	var body bytes.Buffer
	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(data.Terms)),
		DocCount:  data.DocCount,
		CreatedAt: time.Now().Unix(),
	}
	pos := func() int64 { return int64(HeaderSize + body.Len()) }

	postingsStart := pos()
	dict := make([]DictEntry, 0, len(data.Terms))
	for _, entry := range data.Terms {
		relativeOffset := pos() - postingsStart
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		body.Write(postingsData)
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: relativeOffset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
	}
	header.Postings = Section{Offset: postingsStart, Size: pos() - postingsStart}

	dictData, err := appendJSON(&body, dict, &header.Dict, pos)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := appendJSON(&body, data.FieldLengths, &header.Norms, pos); err != nil {
		return "", fmt.Errorf("marshaling field lengths: %w", err)
	}
	if _, err := appendJSON(&body, buildFacetColumns(data.Facets), &header.Facets, pos); err != nil {
		return "", fmt.Errorf("marshaling facet columns: %w", err)
	}

	var store bytes.Buffer
	storeIdx := make([]StoreEntry, 0, len(data.Stored))
	for i, doc := range data.Stored {
		raw, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("marshaling stored document %d: %w", i, err)
		}
		compressed := w.encoder.EncodeAll(raw, nil)
		storeIdx = append(storeIdx, StoreEntry{Offset: int64(store.Len()), Len: len(compressed)})
		store.Write(compressed)
	}
	if _, err := appendJSON(&body, storeIdx, &header.StoreIdx, pos); err != nil {
		return "", fmt.Errorf("marshaling store index: %w", err)
	}
	header.Store = Section{Offset: pos(), Size: int64(store.Len())}
	body.Write(store.Bytes())

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], data.DocCount)
	body.Write(footer)

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(encodeHeader(header)); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(body.Bytes()); err != nil {
		return "", fmt.Errorf("writing segment body: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

// Close releases the compression encoder.
func (w *Writer) Close() error {
	return w.encoder.Close()
}

func appendJSON(body *bytes.Buffer, v any, section *Section, pos func() int64) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	section.Offset = pos()
	section.Size = int64(len(data))
	body.Write(data)
	return data, nil
}

func buildFacetColumns(facets map[schema.Field][][]string) map[schema.Field]FacetColumn {
	columns := make(map[schema.Field]FacetColumn, len(facets))
	for field, docs := range facets {
		ordinals := make(map[string]uint32)
		var terms []string
		for _, paths := range docs {
			for _, p := range paths {
				if _, ok := ordinals[p]; !ok {
					ordinals[p] = 0
					terms = append(terms, p)
				}
			}
		}
		sort.Strings(terms)
		for i, t := range terms {
			ordinals[t] = uint32(i)
		}
		col := FacetColumn{Terms: terms, Docs: make([][]uint32, len(docs))}
		for doc, paths := range docs {
			ords := make([]uint32, 0, len(paths))
			for _, p := range paths {
				ords = append(ords, ordinals[p])
			}
			col.Docs[doc] = dedupSorted(ords)
		}
		columns[field] = col
	}
	return columns
}

func dedupSorted(ords []uint32) []uint32 {
	sort.Slice(ords, func(i, j int) bool { return ords[i] < ords[j] })
	out := ords[:0]
	for _, o := range ords {
		if len(out) == 0 || o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}

func encodeHeader(h SegmentHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	off := 24
	for _, s := range h.sections() {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(s.Offset))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(s.Size))
		off += 16
	}
	return buf
}

func decodeHeader(buf []byte) SegmentHeader {
	h := SegmentHeader{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		Version:   binary.LittleEndian.Uint32(buf[4:8]),
		TermCount: binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:  binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
	off := 24
	for _, s := range h.sectionPtrs() {
		s.Offset = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
		s.Size = int64(binary.LittleEndian.Uint64(buf[off+8 : off+16]))
		off += 16
	}
	return h
}

func (h SegmentHeader) sections() []Section {
	return []Section{h.Postings, h.Dict, h.Norms, h.Facets, h.StoreIdx, h.Store}
}

func (h *SegmentHeader) sectionPtrs() []*Section {
	return []*Section{&h.Postings, &h.Dict, &h.Norms, &h.Facets, &h.StoreIdx, &h.Store}
}
