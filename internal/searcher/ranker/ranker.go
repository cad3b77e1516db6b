// Package ranker implements Okapi BM25 term scoring.
package ranker

import "math"

const (
	k1 = 1.2
	b  = 0.75
)

// FieldStats are the corpus-wide statistics of one field, gathered over
// every segment of a snapshot so that scores are comparable across segments.
type FieldStats struct {
	TotalDocs    int64
	AvgDocLength float64
}

// NewFieldStats derives the average field length from a total token count.
func NewFieldStats(totalDocs int64, totalTokens uint64) FieldStats {
	s := FieldStats{TotalDocs: totalDocs}
	if totalDocs > 0 {
		s.AvgDocLength = float64(totalTokens) / float64(totalDocs)
	}
	return s
}

// TermWeight is the query-time weight of one term in one field.
type TermWeight struct {
	idf   float64
	stats FieldStats
}

func NewTermWeight(stats FieldStats, docFreq int64) TermWeight {
	return TermWeight{idf: computeIDF(stats.TotalDocs, docFreq), stats: stats}
}

// Score is the BM25 contribution of a document containing the term
// termFreq times in a field of docLength tokens.
func (w TermWeight) Score(termFreq int, docLength uint32) float32 {
	return float32(w.idf * computeTFNorm(float64(termFreq), float64(docLength), w.stats.AvgDocLength))
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
