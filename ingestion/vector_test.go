package ingestion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector remains unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"scale non-unit vector", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{float32(-1 / math.Sqrt2), float32(1 / math.Sqrt2)}},
		{"zero vector", []float32{0, 0, 0}, []float32{0, 0, 0}},
		{"empty vector", []float32{}, []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.input)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-6)
			}
		})
	}
}

func TestNormalizeVector_DoesNotModifyInput(t *testing.T) {
	input := []float32{3, 4}
	NormalizeVector(input)
	assert.Equal(t, []float32{3, 4}, input)
}

func TestNormalizeVector_SmallValues(t *testing.T) {
	got := NormalizeVector([]float32{1e-20, 2e-20, 2e-20})
	assert.InDelta(t, 1.0, magnitude(got), 1e-6)
}

func TestCheckEmbeddings(t *testing.T) {
	texts := []string{"a", "b"}

	assert.NoError(t, checkEmbeddings(texts, [][]float32{{1, 0}, {0, 1}}))
	assert.ErrorIs(t, checkEmbeddings(texts, [][]float32{{1, 0}}), ErrEmbeddingMismatch)
	assert.ErrorIs(t, checkEmbeddings(texts, [][]float32{{1, 0}, {1}}), ErrEmbeddingMismatch)
	assert.ErrorIs(t, checkEmbeddings(texts, [][]float32{{1, 0}, {}}), ErrEmbeddingMismatch)
}
