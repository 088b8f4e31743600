package registry

import (
	"fmt"
	"math"
	"sort"
)

// Match is one ranked discovery result.
type Match struct {
	Tool  *Tool
	Score float64
}

// Search ranks tools by cosine similarity between the query vector and each
// tool's embedding, descending, ties broken by registration order. Tools
// without an embedding never appear. A brute-force scan is fine at the
// catalog sizes this runtime targets; an ANN index can replace it behind the
// same contract if the catalog ever grows past that.
func (r *Registry) Search(query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if r.dim == 0 {
		return nil, nil
	}
	if len(query) != r.dim {
		return nil, fmt.Errorf("registry: query dimension %d, registry uses %d", len(query), r.dim)
	}

	matches := make([]Match, 0, len(r.order))
	for _, tool := range r.order {
		if len(tool.Def.Embedding) == 0 {
			continue
		}
		matches = append(matches, Match{
			Tool:  tool,
			Score: cosine(query, tool.Def.Embedding),
		})
	}

	// Stable sort preserves registration order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// cosine computes cosine similarity with float64 accumulation. Zero vectors
// score 0 rather than NaN.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
