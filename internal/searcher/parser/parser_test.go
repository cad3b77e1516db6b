package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, p *QueryPlan)
	}{
		{
			name:  "default AND",
			query: "old sea",
			check: func(t *testing.T, p *QueryPlan) {
				assert.Equal(t, QueryAND, p.Type)
				assert.Equal(t, []Clause{{Term: "old"}, {Term: "sea"}}, p.Terms)
			},
		},
		{
			name:  "OR with exclusion",
			query: "sea OR mountains NOT maps",
			check: func(t *testing.T, p *QueryPlan) {
				assert.Equal(t, QueryOR, p.Type)
				assert.Equal(t, []Clause{{Term: "sea"}, {Term: "mountain"}}, p.Terms)
				assert.Equal(t, []Clause{{Term: "map"}}, p.ExcludeTerms)
			},
		},
		{
			name:  "field scoped term",
			query: "title:Stories",
			check: func(t *testing.T, p *QueryPlan) {
				assert.Equal(t, []Clause{{Field: "title", Term: "story"}}, p.Terms)
			},
		},
		{
			name:  "facet filters",
			query: "* category:/cat/books NOT category:/cat/books/old",
			check: func(t *testing.T, p *QueryPlan) {
				assert.True(t, p.MatchAll)
				assert.Empty(t, p.Terms)
				assert.Equal(t, []FacetFilter{{Field: "category", Path: "/cat/books"}}, p.Filters)
				assert.Equal(t, []FacetFilter{{Field: "category", Path: "/cat/books/old"}}, p.ExcludeFilters)
			},
		},
		{
			name:  "stop words only",
			query: "the and of",
			check: func(t *testing.T, p *QueryPlan) {
				assert.True(t, p.IsEmpty())
			},
		},
		{
			name:  "blank",
			query: "   ",
			check: func(t *testing.T, p *QueryPlan) {
				assert.True(t, p.IsEmpty())
				assert.Equal(t, "   ", p.RawQuery)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse(tt.query))
		})
	}
}
