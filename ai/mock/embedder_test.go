package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	v1, err := m.EmbedText(ctx, "check the capacitor")
	require.NoError(t, err)
	v2, err := m.EmbedText(ctx, "check the capacitor")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, DefaultDimension)
	assert.Equal(t, 2, m.CallCount())

	var sum float64
	for _, v := range v1 {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockEmbedder_Batch(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	vectors, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	single, err := m.EmbedText(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[1])
}

func TestMockEmbedder_WithVector(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder().WithVector("leak", []float32{1, 0, 0})

	v, err := m.EmbedText(ctx, "leak")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, v)

	v[0] = 5
	again, err := m.EmbedText(ctx, "leak")
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0])
}

func TestMockEmbedder_InjectedFailure(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	})

	_, err := m.EmbedText(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	_, err = m.EmbedText(context.Background(), "x")
	assert.NoError(t, err)
}

func TestMockEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockEmbedder().EmbedText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.NotNil(t, p.Embedder())
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
