package indexer

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
)

func benchDoc(i int) schema.NamedDocument {
	return schema.NamedDocument{
		"title":    {fmt.Sprintf("segment benchmark document %d with several terms for the memory index", i)},
		"category": {fmt.Sprintf("/bench/%d/%d", i%7, i%3)},
	}
}

// BenchmarkIndexDocument measures buffered inserts, including the flushes
// triggered every SegmentMaxDocs documents.
func BenchmarkIndexDocument(b *testing.B) {
	cfg := config.IndexConfig{DataDir: b.TempDir(), SegmentMaxDocs: 5000}
	e, err := NewEngine(cfg, testSchema(b))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.IndexDocument(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFlush(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			cfg := testConfig(b)
			cfg.SegmentMaxDocs = n + 1
			e, err := NewEngine(cfg, testSchema(b))
			if err != nil {
				b.Fatal(err)
			}
			defer e.Close()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				for d := 0; d < n; d++ {
					if err := e.IndexDocument(benchDoc(d)); err != nil {
						b.Fatal(err)
					}
				}
				b.StartTimer()
				if err := e.Flush(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
