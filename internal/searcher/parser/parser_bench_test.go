package parser

import "testing"

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "river delta"},
		{"boolean_or", "sea OR ocean OR lake"},
		{"with_not", "maps NOT charts"},
		{"fielded", "title:atlas body:coast"},
		{"facet_filter", "history category:/cat/books"},
		{"long", "segment facet collector projection searcher snapshot lease generation ordinal"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(q.query)
			}
		})
	}
}
