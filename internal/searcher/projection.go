package searcher

import (
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/collector"
)

// project shapes raw facet counts into the per-field result sequences.
// For every requested field the entries of each requested prefix follow in
// request order, each prefix's entries in ascending path order. Prefixes
// without any count are omitted rather than reported as zero. A field with
// no usable prefixes yields an empty, non-nil sequence.
//
// Entries are not merged across prefixes. With overlapping prefixes such as
// "/cat" and "/cat/books" the path "/cat/books" appears twice: once as a
// child of "/cat", counting every document at or below it, and once as the
// exact match of "/cat/books".
func project(plan *facetPlan, fruit *collector.MultiFruit) map[string][]collector.FacetEntry {
	out := make(map[string][]collector.FacetEntry, len(plan.fields))
	for i, name := range plan.fields {
		entries := make([]collector.FacetEntry, 0)
		counts := fruit.Facets[i]
		for _, prefix := range plan.prefixes[name] {
			entries = append(entries, counts.Get(prefix)...)
		}
		out[name] = entries
	}
	return out
}
