package retriever

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/poiesic/retriever/ai/mock"
	"github.com/poiesic/retriever/config"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/ingestion"
	"github.com/poiesic/retriever/metrics"
	"github.com/poiesic/retriever/search"
	"github.com/poiesic/retriever/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, opts ...DatabaseOption) (*Database, *mock.MockEmbedder) {
	t.Helper()
	embedder := mock.NewMockEmbedder()
	opts = append([]DatabaseOption{WithInMemory(), WithProvider(mock.NewMockProviderWithServices(embedder))}, opts...)
	db, err := NewDatabase("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, embedder
}

func hvacPassages() []ingestion.Passage {
	return []ingestion.Passage{
		{Filename: "Carrier_48TC.pdf", PageNumber: 1, Text: "refrigerant leak repair"},
		{Filename: "Trane_XR14.pdf", PageNumber: 2, Text: "cooling policy overview"},
		{Filename: "Carrier_59SC.pdf", PageNumber: 3, Text: "refrigerant leak causes"},
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.Passages())
		assert.NotNil(t, db.Provider())
		assert.Equal(t, config.DefaultCollection, db.Passages().Collection())
		assert.Nil(t, db.Metrics())
	})

	t.Run("custom collection", func(t *testing.T) {
		db, _ := newTestDatabase(t, WithCollection("furnace_manuals"))
		assert.Equal(t, "furnace_manuals", db.Passages().Collection())
	})

	t.Run("invalid collection name", func(t *testing.T) {
		_, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()), WithCollection("bad name"))
		var storeErr *core.VectorStoreError
		require.ErrorAs(t, err, &storeErr)
		assert.ErrorIs(t, err, storage.ErrInvalidCollection)
	})

	t.Run("missing collection without create", func(t *testing.T) {
		_, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()), WithCreateIfMissing(false))
		var storeErr *core.VectorStoreError
		require.ErrorAs(t, err, &storeErr)
		assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	db, err := NewDatabase(t.TempDir(), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestDatabase_ReopenExistingCollection(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDatabase(dir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	pipeline, err := db.NewIngestionPipeline(ingestion.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	_, err = pipeline.Ingest(ctx, hvacPassages())
	require.NoError(t, err)
	pipeline.Release()
	require.NoError(t, db.Close())

	db, err = NewDatabase(dir, WithProvider(mock.NewMockProvider()), WithCreateIfMissing(false))
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Passages().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDatabase_IngestThenSearch(t *testing.T) {
	db, embedder := newTestDatabase(t)
	ctx := context.Background()

	searcher, err := db.NewSearcher()
	require.NoError(t, err)

	results, err := searcher.HybridSearch(ctx, "refrigerant leak", 5, core.NoFilter())
	require.NoError(t, err)
	assert.Empty(t, results, "empty collection")

	pipeline, err := db.NewIngestionPipeline(ingestion.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, hvacPassages())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)

	// The commit hook dropped the empty snapshot.
	assert.Nil(t, searcher.Cache().Current())

	results, err = searcher.HybridSearch(ctx, "refrigerant leak", 5, core.BrandFilter("carrier"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Metadata[core.MetadataFilename], "Carrier")
		assert.Positive(t, r.Ranks[core.SourceDense])
	}
	assert.Positive(t, embedder.CallCount())
}

func TestDatabase_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	db, _ := newTestDatabase(t, WithMetrics(registry))
	require.NotNil(t, db.Metrics())
	assert.Same(t, registry, db.Metrics().Registry())
	ctx := context.Background()

	pipeline, err := db.NewIngestionPipeline(ingestion.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.Ingest(ctx, hvacPassages())
	require.NoError(t, err)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)
	_, err = searcher.HybridSearch(ctx, "refrigerant leak", 5, core.NoFilter())
	require.NoError(t, err)

	_, err = db.Reembed(ctx, &ingestion.ReembedConfig{BatchSize: 2, ReportInterval: 2, MaxRetries: 1}, nil)
	require.NoError(t, err)

	m := db.Metrics()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsIngested))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsReembedded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuildsTotal))
}

func TestDatabase_ReembedInvalidatesSearchers(t *testing.T) {
	db, _ := newTestDatabase(t)
	ctx := context.Background()

	pipeline, err := db.NewIngestionPipeline(ingestion.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.Ingest(ctx, hvacPassages())
	require.NoError(t, err)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)
	_, err = searcher.HybridSearch(ctx, "cooling", 5, core.NoFilter())
	require.NoError(t, err)
	require.NotNil(t, searcher.Cache().Current())

	var progress bytes.Buffer
	n, err := db.Reembed(ctx, nil, &progress)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Nil(t, searcher.Cache().Current())
	assert.Contains(t, progress.String(), "Reembedding complete")
}

func trackedSearchers(db *Database) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.searchers)
}

func TestDatabase_ReleaseSearcher(t *testing.T) {
	db, _ := newTestDatabase(t)
	ctx := context.Background()

	kept, err := db.NewSearcher()
	require.NoError(t, err)
	released, err := db.NewSearcher()
	require.NoError(t, err)
	require.Equal(t, 2, trackedSearchers(db))

	db.ReleaseSearcher(released)
	db.ReleaseSearcher(nil)
	assert.Equal(t, 1, trackedSearchers(db))

	for _, s := range []*search.Searcher{kept, released} {
		_, err := s.HybridSearch(ctx, "cooling", 5, core.NoFilter())
		require.NoError(t, err)
	}

	db.InvalidateSearchers()
	assert.Nil(t, kept.Cache().Current())
	assert.NotNil(t, released.Cache().Current())
}

func TestDatabase_UnreachableSearchersAreDropped(t *testing.T) {
	db, _ := newTestDatabase(t)

	for i := 0; i < 10; i++ {
		_, err := db.NewSearcher()
		require.NoError(t, err)
	}
	kept, err := db.NewSearcher()
	require.NoError(t, err)
	require.Equal(t, 11, trackedSearchers(db))

	runtime.GC()
	runtime.GC()
	db.InvalidateSearchers()

	assert.Equal(t, 1, trackedSearchers(db))
	runtime.KeepAlive(kept)
}

func TestDatabase_NewSearcherFromConfig(t *testing.T) {
	db, _ := newTestDatabase(t)

	cfg := config.Default().Search
	searcher, err := db.NewSearcherFromConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, searcher)

	cfg.CandidateDepth = 0
	_, err = db.NewSearcherFromConfig(cfg)
	assert.Error(t, err)
}

func TestDatabase_NewIngestionPipelineFromConfig(t *testing.T) {
	db, _ := newTestDatabase(t)

	cfg := config.Default().Ingestion
	cfg.PoolSize = 2
	cfg.RateLimit = 100
	cfg.Burst = 5
	pipeline, err := db.NewIngestionPipelineFromConfig(cfg)
	require.NoError(t, err)
	pipeline.Release()

	cfg.BatchSize = 0
	_, err = db.NewIngestionPipelineFromConfig(cfg)
	assert.ErrorIs(t, err, ingestion.ErrInvalidBatchSize)
}

func TestNewDatabaseFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.InMemory = true
	cfg.Store.Collection = "manuals"
	cfg.Metrics.Enabled = true

	db, err := NewDatabaseFromConfig(cfg, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "manuals", db.Passages().Collection())
	assert.NotNil(t, db.Metrics())

	cfg.Search.TopK = 0
	_, err = NewDatabaseFromConfig(cfg, WithProvider(mock.NewMockProvider()))
	assert.Error(t, err)
}
