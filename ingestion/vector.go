package ingestion

import (
	"fmt"
	"math"
)

// NormalizeVector returns a unit-length copy of v. A zero vector is returned
// as a zero vector of the same length.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	result := make([]float32, len(v))
	if sum == 0 {
		return result
	}

	magnitude := math.Sqrt(sum)
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// checkEmbeddings verifies one vector per text and a single dimension.
func checkEmbeddings(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingMismatch, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrEmbeddingMismatch, i)
		}
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrEmbeddingMismatch, i, len(v), len(vectors[0]))
		}
	}
	return nil
}
