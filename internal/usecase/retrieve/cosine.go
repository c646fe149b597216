package retrieve

import "math"

const normEpsilon = 1e-12

// cosineSimilarity computes dot(a, b) / (|a| * |b|) in float64. Degenerate
// vectors (zero norm) score 0 instead of dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom < normEpsilon {
		return 0
	}
	return dot / denom
}
