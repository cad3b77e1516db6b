// Package schema describes the fields of an index: their names, value types
// and whether their values are kept in the document store. It also converts
// stored documents into their field-name keyed form.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
)

// FileName is the schema file written next to the segments of an index.
const FileName = "schema.json"

// FieldType is the value type of a field.
type FieldType string

const (
	TypeText  FieldType = "text"
	TypeFacet FieldType = "facet"
)

// Field is a handle to a field: its position in the schema.
type Field uint32

// FieldEntry describes one field.
type FieldEntry struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Stored bool      `json:"stored"`
}

// Schema is immutable once built.
type Schema struct {
	fields []FieldEntry
	byName map[string]Field
}

// Builder assembles a Schema.
type Builder struct {
	fields []FieldEntry
	err    error
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddTextField adds a tokenized, BM25-scored text field.
func (b *Builder) AddTextField(name string, stored bool) *Builder {
	return b.add(FieldEntry{Name: name, Type: TypeText, Stored: stored})
}

// AddFacetField adds a hierarchical facet field. Facet values are always
// stored so that documents round-trip with their facets.
func (b *Builder) AddFacetField(name string) *Builder {
	return b.add(FieldEntry{Name: name, Type: TypeFacet, Stored: true})
}

func (b *Builder) add(entry FieldEntry) *Builder {
	if b.err != nil {
		return b
	}
	if entry.Name == "" {
		b.err = fmt.Errorf("field name must not be empty")
		return b
	}
	for _, f := range b.fields {
		if f.Name == entry.Name {
			b.err = fmt.Errorf("field %q defined twice", entry.Name)
			return b
		}
	}
	b.fields = append(b.fields, entry)
	return b
}

// Build returns the schema or the first definition error.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	return newSchema(b.fields)
}

func newSchema(entries []FieldEntry) (*Schema, error) {
	s := &Schema{
		fields: make([]FieldEntry, len(entries)),
		byName: make(map[string]Field, len(entries)),
	}
	copy(s.fields, entries)
	for i, e := range s.fields {
		switch e.Type {
		case TypeText, TypeFacet:
		default:
			return nil, fmt.Errorf("field %q has unknown type %q", e.Name, e.Type)
		}
		if _, dup := s.byName[e.Name]; dup {
			return nil, fmt.Errorf("field %q defined twice", e.Name)
		}
		s.byName[e.Name] = Field(i)
	}
	return s, nil
}

// GetField resolves a field name.
func (s *Schema) GetField(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Entry returns the definition of f. It panics on a handle that did not come
// from this schema.
func (s *Schema) Entry(f Field) FieldEntry {
	return s.fields[f]
}

// NumFields is the number of defined fields.
func (s *Schema) NumFields() int {
	return len(s.fields)
}

// Fields returns the field handles in definition order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	for i := range s.fields {
		out[i] = Field(i)
	}
	return out
}

// TextFields returns the handles of all text fields, the default search
// fields of a query.
func (s *Schema) TextFields() []Field {
	var out []Field
	for i, e := range s.fields {
		if e.Type == TypeText {
			out = append(out, Field(i))
		}
	}
	return out
}

// FieldValue is one value of a stored document.
type FieldValue struct {
	Field Field  `json:"f"`
	Value string `json:"v"`
}

// Document is the stored, handle-keyed representation of a document.
type Document struct {
	Values []FieldValue `json:"values"`
}

// NamedDocument is a document keyed by field name. Multi-valued fields keep
// their values in insertion order.
type NamedDocument map[string][]string

// ToNamedDoc projects a stored document onto field names. Values of fields
// unknown to the schema are dropped.
func (s *Schema) ToNamedDoc(doc Document) NamedDocument {
	named := make(NamedDocument, len(doc.Values))
	for _, v := range doc.Values {
		if int(v.Field) >= len(s.fields) {
			continue
		}
		name := s.fields[v.Field].Name
		named[name] = append(named[name], v.Value)
	}
	return named
}

// ParseDocument converts a named document into its stored form, validating
// every value against its field type. Unknown field names are rejected.
func (s *Schema) ParseDocument(named NamedDocument) (Document, error) {
	var doc Document
	for _, f := range s.Fields() {
		entry := s.fields[f]
		for _, v := range named[entry.Name] {
			if entry.Type == TypeFacet {
				parsed, err := facet.Parse(v)
				if err != nil {
					return Document{}, fmt.Errorf("field %q: %w", entry.Name, err)
				}
				v = parsed.String()
			}
			doc.Values = append(doc.Values, FieldValue{Field: f, Value: v})
		}
	}
	for name := range named {
		if _, ok := s.byName[name]; !ok {
			return Document{}, fmt.Errorf("field %q is not defined in the schema", name)
		}
	}
	return doc, nil
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Fields []FieldEntry `json:"fields"`
	}{Fields: s.fields})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Fields []FieldEntry `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := newSchema(raw.Fields)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Save writes the schema file into dir.
func (s *Schema) Save(dir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating schema directory: %w", err)
	}
	tmp := filepath.Join(dir, FileName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("renaming schema file: %w", err)
	}
	return nil
}

// Load reads the schema file from dir.
func Load(dir string) (*Schema, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads a schema from an arbitrary JSON file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return &s, nil
}
