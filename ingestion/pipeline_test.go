package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/retriever/ai/mock"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestPipeline(t *testing.T, repo storage.PassageRepository, embedder *mock.MockEmbedder, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithRetry(2, time.Millisecond)}, opts...)
	pipeline, err := NewPipeline(repo, mock.NewMockProviderWithServices(embedder), opts...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)
	return pipeline
}

func TestNewPipeline(t *testing.T) {
	repo := setupTestRepo(t)
	provider := mock.NewMockProvider()

	t.Run("valid configuration", func(t *testing.T) {
		pipeline, err := NewPipeline(repo, provider)
		require.NoError(t, err)
		defer pipeline.Release()
		assert.Equal(t, DefaultBatchSize, pipeline.batchSize)
	})

	t.Run("with options", func(t *testing.T) {
		pipeline, err := NewPipeline(repo, provider,
			WithPoolSize(2),
			WithBatchSize(8),
			WithLogger(slog.Default()),
			WithRateLimit(rate.Limit(100), 10),
			WithRetry(5, time.Millisecond),
		)
		require.NoError(t, err)
		defer pipeline.Release()
		assert.Equal(t, 2, pipeline.pool.Cap())
		assert.Equal(t, 8, pipeline.batchSize)
		assert.NotNil(t, pipeline.embedder.limiter)
		assert.Equal(t, 5, pipeline.embedder.maxRetries)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewPipeline(nil, provider)
		assert.Equal(t, ErrRepositoryRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewPipeline(repo, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		_, err := NewPipeline(repo, provider, WithBatchSize(0))
		assert.ErrorIs(t, err, ErrInvalidBatchSize)
	})

	t.Run("invalid retry", func(t *testing.T) {
		_, err := NewPipeline(repo, provider, WithRetry(0, time.Millisecond))
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestPipeline_Ingest(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder()
	pipeline := newTestPipeline(t, repo, embedder, WithBatchSize(3), WithPoolSize(4))

	passages := manualPassages(10)
	result, err := pipeline.Ingest(context.Background(), passages)
	require.NoError(t, err)
	assert.Equal(t, Result{Stored: 10}, result)
	assert.Equal(t, 4, embedder.CallCount(), "10 passages in batches of 3")

	records, err := repo.EnumerateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 10)

	for i, record := range records {
		assert.Equal(t, passages[i].Text, record.Passage, "input order is kept")
		assert.Equal(t, passages[i].ToRecord().Id, record.Id)
		assert.Equal(t, "Carrier_48TC.pdf", record.Metadata[core.MetadataFilename])
		require.Len(t, record.Vector, mock.DefaultDimension)
		assert.InDelta(t, 1.0, magnitude(record.Vector), 1e-4)
	}
}

func TestPipeline_NormalizesVectors(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 2}
		}
		return out, nil
	})
	pipeline := newTestPipeline(t, repo, embedder)

	_, err := pipeline.Ingest(context.Background(), manualPassages(2))
	require.NoError(t, err)

	records, err := repo.EnumerateAll(context.Background())
	require.NoError(t, err)
	for _, record := range records {
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, record.Vector, 1e-6)
	}
}

func TestPipeline_SkipsExistingAndRepeated(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder()
	pipeline := newTestPipeline(t, repo, embedder)
	ctx := context.Background()

	passages := manualPassages(4)
	_, err := pipeline.Ingest(ctx, passages[:2])
	require.NoError(t, err)
	embedder.Reset()

	input := append([]Passage{passages[3]}, passages...)
	result, err := pipeline.Ingest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, Result{Stored: 2, Skipped: 3}, result)
	assert.Equal(t, 1, embedder.CallCount())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPipeline_NothingToIngest(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder()
	pipeline := newTestPipeline(t, repo, embedder)

	result, err := pipeline.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestPipeline_InvalidPassage(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder()
	pipeline := newTestPipeline(t, repo, embedder)

	passages := manualPassages(2)
	passages[1].Text = ""

	_, err := pipeline.Ingest(context.Background(), passages)
	assert.ErrorIs(t, err, core.ErrEmptyPassage)
	assert.Contains(t, err.Error(), "passage 1")
	assert.Equal(t, 0, embedder.CallCount())

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_EmbeddingFailureStoresNothing(t *testing.T) {
	repo := setupTestRepo(t)
	boom := errors.New("embedding service down")
	var calls atomic.Int32
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		return nil, boom
	})

	var hooked atomic.Int32
	pipeline := newTestPipeline(t, repo, embedder, WithBatchSize(100), WithCommitHook(func(int) { hooked.Add(1) }))

	_, err := pipeline.Ingest(context.Background(), manualPassages(5))
	var encErr *core.EncoderError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load(), "one retry")
	assert.Zero(t, hooked.Load())

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_RetryRecovers(t *testing.T) {
	repo := setupTestRepo(t)
	var calls atomic.Int32
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{0, 1}
		}
		return out, nil
	})
	pipeline := newTestPipeline(t, repo, embedder)

	result, err := pipeline.Ingest(context.Background(), manualPassages(3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
}

func TestPipeline_EmbeddingCountMismatch(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	})
	pipeline := newTestPipeline(t, repo, embedder)

	_, err := pipeline.Ingest(context.Background(), manualPassages(3))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestPipeline_CommitHooks(t *testing.T) {
	repo := setupTestRepo(t)
	var order []string
	var stored []int
	pipeline := newTestPipeline(t, repo, mock.NewMockEmbedder(),
		WithCommitHook(func(n int) {
			order = append(order, "first")
			stored = append(stored, n)
		}),
		WithCommitHook(func(int) { order = append(order, "second") }),
		WithCommitHook(nil),
	)
	ctx := context.Background()

	_, err := pipeline.Ingest(ctx, manualPassages(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []int{3}, stored)

	// Nothing new stored, no hook.
	_, err = pipeline.Ingest(ctx, manualPassages(3))
	require.NoError(t, err)
	assert.Len(t, order, 2)
}

func TestPipeline_RateLimit(t *testing.T) {
	repo := setupTestRepo(t)
	embedder := mock.NewMockEmbedder()
	pipeline := newTestPipeline(t, repo, embedder,
		WithBatchSize(1),
		WithRateLimit(rate.Limit(50), 1),
	)

	start := time.Now()
	_, err := pipeline.Ingest(context.Background(), manualPassages(4))
	require.NoError(t, err)
	// First call uses the burst, the other three wait 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 4, embedder.CallCount())
}

func TestPipeline_CancelledContext(t *testing.T) {
	repo := setupTestRepo(t)
	pipeline := newTestPipeline(t, repo, mock.NewMockEmbedder())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Ingest(ctx, manualPassages(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplit(t *testing.T) {
	records := make([]*core.Record, 7)
	batches := split(records, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[2], 1)

	assert.Empty(t, split(nil, 3))
}
