// Package validator checks input documents against an index schema and
// reports every offending field at once.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/facet"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

const (
	maxTextLength  = 1048576
	maxFacetLength = 1024
	maxValues      = 256
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateDocument reports unknown fields, malformed facet paths, oversized
// values and documents without any value.
func ValidateDocument(s *schema.Schema, doc schema.NamedDocument) error {
	errs := make(map[string]string)
	total := 0
	for name, vals := range doc {
		f, ok := s.GetField(name)
		if !ok {
			errs[name] = "field is not defined in the schema"
			continue
		}
		total += len(vals)
		if len(vals) > maxValues {
			errs[name] = fmt.Sprintf("at most %d values allowed", maxValues)
			continue
		}
		entry := s.Entry(f)
		for _, v := range vals {
			if msg := checkValue(entry.Type, v); msg != "" {
				errs[name] = msg
				break
			}
		}
	}
	if total == 0 && len(errs) == 0 {
		errs["document"] = "document has no values"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkValue(t schema.FieldType, v string) string {
	switch t {
	case schema.TypeFacet:
		if len(v) > maxFacetLength {
			return fmt.Sprintf("facet must be at most %d characters", maxFacetLength)
		}
		if _, err := facet.Parse(v); err != nil {
			return err.Error()
		}
	case schema.TypeText:
		if len(v) > maxTextLength {
			return fmt.Sprintf("text must be at most %d characters", maxTextLength)
		}
	}
	return ""
}
