package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
)

func TestValidateDocument(t *testing.T) {
	s, err := schema.NewBuilder().AddTextField("title", true).AddFacetField("category").Build()
	require.NoError(t, err)

	tests := []struct {
		name   string
		doc    schema.NamedDocument
		fields []string
	}{
		{"valid", schema.NamedDocument{"title": {"Sea"}, "category": {"/cat/books"}}, nil},
		{"facet only", schema.NamedDocument{"category": {"/a"}}, nil},
		{"empty", schema.NamedDocument{}, []string{"document"}},
		{"no values", schema.NamedDocument{"title": {}}, []string{"document"}},
		{"unknown field", schema.NamedDocument{"title": {"x"}, "color": {"red"}}, []string{"color"}},
		{"relative facet", schema.NamedDocument{"category": {"cat/books"}}, []string{"category"}},
		{"empty segment", schema.NamedDocument{"category": {"/cat//books"}}, []string{"category"}},
		{"long text", schema.NamedDocument{"title": {strings.Repeat("a", maxTextLength+1)}}, []string{"title"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(s, tt.doc)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.fields))
		})
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "too long", "category": "bad"}}
	assert.Equal(t, "category: bad; title: too long", err.Error())
}
