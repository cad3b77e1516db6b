// Package parser turns a query string into a QueryPlan.
//
// Syntax: whitespace-separated terms, combined with AND (the default) or
// OR. NOT excludes the next term. A term may be scoped to a field with
// field:term; field:/a/b filters on a facet path. A lone * matches every
// document.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

// Clause is one analyzed term. An empty Field means every text field.
type Clause struct {
	Field string
	Term  string
}

// FacetFilter restricts matches to documents with a facet at or below Path.
type FacetFilter struct {
	Field string
	Path  string
}

type QueryPlan struct {
	Terms          []Clause
	Type           QueryType
	ExcludeTerms   []Clause
	Filters        []FacetFilter
	ExcludeFilters []FacetFilter
	MatchAll       bool
	RawQuery       string
}

// IsEmpty reports whether the plan can match nothing at all.
func (p *QueryPlan) IsEmpty() bool {
	return !p.MatchAll && len(p.Terms) == 0 && len(p.Filters) == 0 &&
		len(p.ExcludeTerms) == 0 && len(p.ExcludeFilters) == 0
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]Clause, 0),
		ExcludeTerms: make([]Clause, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	words := strings.Fields(query)
	excludeNext := false
	for i := 0; i < len(words); i++ {
		upper := strings.ToUpper(words[i])
		switch upper {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		case "*":
			plan.MatchAll = true
			excludeNext = false
			continue
		}

		field, value := splitField(words[i])
		if field != "" && strings.HasPrefix(value, "/") {
			filter := FacetFilter{Field: field, Path: value}
			if excludeNext {
				plan.ExcludeFilters = append(plan.ExcludeFilters, filter)
				excludeNext = false
			} else {
				plan.Filters = append(plan.Filters, filter)
			}
			continue
		}

		tokens := tokenizer.Tokenize(value)
		if len(tokens) == 0 {
			continue
		}
		clause := Clause{Field: field, Term: tokens[0].Term}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, clause)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, clause)
		}
	}
	return plan
}

// splitField separates "field:value". Words without a field prefix, or with
// a colon in leading position, are returned whole as the value.
func splitField(word string) (string, string) {
	idx := strings.IndexByte(word, ':')
	if idx <= 0 {
		return "", word
	}
	return word[:idx], word[idx+1:]
}
