// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retriever

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"weak"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/ai/openai"
	"github.com/poiesic/retriever/config"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/ingestion"
	"github.com/poiesic/retriever/metrics"
	"github.com/poiesic/retriever/search"
	"github.com/poiesic/retriever/storage"
	"github.com/poiesic/retriever/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Database ties a passage collection to an embedding provider and hands out
// searchers, ingestion pipelines and re-embedders over it. Writes made
// through the Database invalidate the lexical index of every live searcher
// it created. Searchers are tracked weakly and stop being tracked once they
// are released or garbage collected.
type Database struct {
	backend   *badger.Backend
	repo      *badger.PassageRepository
	provider  ai.AIProvider
	metrics   *metrics.Collector
	mu        sync.Mutex
	searchers map[weak.Pointer[search.Searcher]]struct{}
	base      *slog.Logger // handed to components, which add their own tag
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig        *ai.Config
	provider        ai.AIProvider
	collection      string
	createIfMissing bool
	inMemory        bool
	metricsEnabled  bool
	registry        *prometheus.Registry
	logger          *slog.Logger
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithCollection selects the collection. Default is config.DefaultCollection.
func WithCollection(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.collection = name
	}
}

// WithCreateIfMissing controls whether a missing collection is created.
// Default is true.
func WithCreateIfMissing(create bool) DatabaseOption {
	return func(o *databaseOptions) {
		o.createIfMissing = create
	}
}

// WithInMemory keeps all data in memory; the path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithMetrics enables Prometheus metrics on registry.
// A nil registry selects a fresh one.
func WithMetrics(registry *prometheus.Registry) DatabaseOption {
	return func(o *databaseOptions) {
		o.metricsEnabled = true
		o.registry = registry
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the store at filePath and the configured collection.
// Opening a missing collection without WithCreateIfMissing fails with a
// *core.VectorStoreError wrapping storage.ErrCollectionNotFound.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:        ai.DefaultConfig(),
		collection:      config.DefaultCollection,
		createIfMissing: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, &core.VectorStoreError{Op: "open", Err: err}
	}

	var repo *badger.PassageRepository
	if options.createIfMissing {
		repo, err = badger.NewPassageRepository(backend, options.collection)
	} else {
		repo, err = badger.OpenPassageRepository(backend, options.collection)
	}
	if err != nil {
		backend.Close()
		return nil, &core.VectorStoreError{Op: "open", Err: err}
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repo.Close()
			backend.Close()
			return nil, err
		}
	}

	var collector *metrics.Collector
	if options.metricsEnabled {
		collector, err = metrics.New(options.registry)
		if err != nil {
			provider.Close()
			repo.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:   backend,
		repo:      repo,
		provider:  provider,
		metrics:   collector,
		searchers: make(map[weak.Pointer[search.Searcher]]struct{}),
		base:      options.logger,
		logger:    options.logger.With("component", "database", "collection", options.collection),
	}, nil
}

// NewDatabaseFromConfig opens a Database described by cfg.
func NewDatabaseFromConfig(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []DatabaseOption{
		WithAIConfig(cfg.AIConfig()),
		WithCollection(cfg.Store.Collection),
		WithCreateIfMissing(cfg.Store.CreateIfMissing),
	}
	if cfg.Store.InMemory {
		base = append(base, WithInMemory())
	}
	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(nil))
	}
	return NewDatabase(cfg.Store.Path, append(base, opts...)...)
}

// Close releases the provider, the repository and the backend.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing passage repository", "err", err)
		errs = append(errs, err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Passages returns the passage repository.
func (db *Database) Passages() storage.PassageRepository {
	return db.repo
}

// Provider returns the embedding provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (db *Database) Metrics() *metrics.Collector {
	return db.metrics
}

// NewSearcher creates a searcher over the collection. When metrics are
// enabled each search reports to them unless opts set another monitor factory.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithLogger(db.base)}
	if db.metrics != nil {
		base = append(base, search.WithMonitorFactory(db.metrics.NewSearchMonitor))
	}

	searcher, err := search.NewSearcher(db.repo, db.provider, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.searchers[weak.Make(searcher)] = struct{}{}
	db.mu.Unlock()
	return searcher, nil
}

// ReleaseSearcher stops invalidating searcher after writes. The searcher
// keeps working but may serve a stale lexical index.
func (db *Database) ReleaseSearcher(searcher *search.Searcher) {
	if searcher == nil {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.searchers, weak.Make(searcher))
}

// NewSearcherFromConfig creates a searcher using the search section of cfg.
func (db *Database) NewSearcherFromConfig(cfg config.SearchConfig, opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithCandidateDepth(cfg.CandidateDepth),
		search.WithRRFConstant(cfg.RRFConstant),
	}
	return db.NewSearcher(append(base, opts...)...)
}

// NewIngestionPipeline creates a pipeline writing to the collection.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(db.base),
		ingestion.WithCommitHook(func(stored int) {
			if db.metrics != nil {
				db.metrics.RecordIngested(stored)
			}
			db.InvalidateSearchers()
		}),
	}
	return ingestion.NewPipeline(db.repo, db.provider, append(base, opts...)...)
}

// NewIngestionPipelineFromConfig creates a pipeline using the ingestion
// section of cfg.
func (db *Database) NewIngestionPipelineFromConfig(cfg config.IngestionConfig, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithBatchSize(cfg.BatchSize),
		ingestion.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
	}
	if cfg.PoolSize > 0 {
		base = append(base, ingestion.WithPoolSize(cfg.PoolSize))
	}
	if cfg.RateLimit > 0 {
		base = append(base, ingestion.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.Burst))
	}
	return db.NewIngestionPipeline(append(base, opts...)...)
}

// Reembed replaces stored vectors using the database's embedder and returns
// the number of records updated. Progress is written to progress.
func (db *Database) Reembed(ctx context.Context, cfg *ingestion.ReembedConfig, progress io.Writer) (int, error) {
	reembedder := ingestion.NewReembedder(db.repo, db.provider.Embedder(), cfg, progress)
	n, err := reembedder.Run(ctx)
	if n > 0 {
		if db.metrics != nil {
			db.metrics.RecordReembedded(n)
		}
		db.InvalidateSearchers()
	}
	return n, err
}

// InvalidateSearchers discards the lexical index of every live searcher
// created by this Database. Call it after writing to the collection directly.
func (db *Database) InvalidateSearchers() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for ref := range db.searchers {
		searcher := ref.Value()
		if searcher == nil {
			delete(db.searchers, ref)
			continue
		}
		searcher.Cache().Invalidate()
	}
	db.logger.Debug("invalidated searchers", "count", len(db.searchers))
}
