package ranker

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths, empty vectors and zero magnitudes all yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	// Rounding can push |sim| a hair past 1
	return math.Max(-1, math.Min(1, sim))
}

// SemanticScore rescales cosine similarity from [-1, 1] to [0, 1].
// A missing vector, a dimensionality mismatch or a zero vector scores 0.
func SemanticScore(query, entry []float32) float64 {
	if len(query) == 0 || len(entry) == 0 || len(query) != len(entry) {
		return 0
	}
	if isZero(query) || isZero(entry) {
		return 0
	}
	return (CosineSimilarity(query, entry) + 1) / 2
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
