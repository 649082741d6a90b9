package similarity

import (
	"math"

	"github.com/jonathan/tender-radar/internal/textnorm"
)

// vector is a sparse, L2-normalized term-weight vector keyed by vocabulary index.
type vector map[int]float64

// vectorizer holds a fitted vocabulary and smoothed inverse document frequencies:
// idf(t) = ln((1+N)/(1+df(t))) + 1.
type vectorizer struct {
	vocab map[string]int
	idf   []float64
}

func fit(docs []string) *vectorizer {
	v := &vectorizer{vocab: make(map[string]int)}
	var df []int
	for _, doc := range docs {
		seen := make(map[int]struct{})
		for _, tok := range textnorm.Tokens(doc) {
			idx, ok := v.vocab[tok]
			if !ok {
				idx = len(df)
				v.vocab[tok] = idx
				df = append(df, 0)
			}
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				df[idx]++
			}
		}
	}

	n := float64(len(docs))
	v.idf = make([]float64, len(df))
	for i, d := range df {
		v.idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return v
}

// transform weights term counts by idf and normalizes. Unknown terms are ignored,
// so text sharing no vocabulary yields an empty vector.
func (v *vectorizer) transform(doc string) vector {
	counts := make(map[int]float64)
	for _, tok := range textnorm.Tokens(doc) {
		if idx, ok := v.vocab[tok]; ok {
			counts[idx]++
		}
	}

	var norm float64
	for idx, tf := range counts {
		w := tf * v.idf[idx]
		counts[idx] = w
		norm += w * w
	}
	if norm == 0 {
		return vector{}
	}
	norm = math.Sqrt(norm)
	for idx := range counts {
		counts[idx] /= norm
	}
	return counts
}

// cosine of two normalized vectors is their dot product.
func cosine(a, b vector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for idx, w := range a {
		dot += w * b[idx]
	}
	return dot
}
