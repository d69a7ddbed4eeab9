package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of passages sent to the embedder per call.
	DefaultBatchSize = 32

	// DefaultMaxRetries is the number of attempts per embedding call.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for exponential backoff.
	DefaultRetryDelay = 1 * time.Second
)

// Pipeline embeds passages and stores them as records.
// Embedding runs concurrently on a worker pool; batches are stored in input
// order so the collection's enumeration order follows the input.
type Pipeline struct {
	repo      storage.PassageRepository
	embedder  *batchEmbedder
	pool      *ants.Pool
	batchSize int
	hooks     []func(stored int)
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets the number of passages per embedding call.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}
		p.batchSize = size
		return nil
	}
}

// WithRateLimit caps embedding calls at limit per second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(p *Pipeline) error {
		if burst < 1 {
			burst = 1
		}
		p.embedder.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithRetry sets the attempts per embedding call and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.embedder.maxRetries = maxAttempts
		p.embedder.retryDelay = baseDelay
		return nil
	}
}

// WithCommitHook registers fn to run after an Ingest call stored at least
// one record. Hooks run synchronously in registration order.
func WithCommitHook(fn func(stored int)) Option {
	return func(p *Pipeline) error {
		if fn != nil {
			p.hooks = append(p.hooks, fn)
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repo storage.PassageRepository, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repo: repo,
		embedder: &batchEmbedder{
			embedder:   provider.Embedder(),
			maxRetries: DefaultMaxRetries,
			retryDelay: DefaultRetryDelay,
		},
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Result summarizes an Ingest call.
type Result struct {
	// Stored is the number of new records written.
	Stored int

	// Skipped counts passages whose id was already stored or repeated
	// within the input.
	Skipped int
}

// Ingest embeds and stores passages. Passages already present in the
// collection are skipped without calling the embedder. Invalid passages
// fail the whole call before anything is embedded. If any embedding batch
// fails nothing is stored.
func (p *Pipeline) Ingest(ctx context.Context, passages []Passage) (Result, error) {
	var result Result

	records, err := p.prepare(ctx, passages, &result)
	if err != nil {
		return result, err
	}
	if len(records) == 0 {
		p.logger.Info("nothing to ingest", "skipped", result.Skipped)
		return result, nil
	}

	batches := split(records, p.batchSize)
	p.logger.Info("ingesting passages", "passages", len(records), "batches", len(batches))

	if err := p.embedBatches(ctx, batches); err != nil {
		p.logger.Error("error generating embeddings", "err", err)
		return result, err
	}

	for i, batch := range batches {
		if _, err := p.repo.AddRecords(ctx, batch...); err != nil {
			p.logger.Error("error storing batch", "batch", i, "err", err)
			p.commit(result.Stored)
			return result, &core.VectorStoreError{Op: "add", Err: err}
		}
		result.Stored += len(batch)
	}

	p.logger.Info("ingested passages", "stored", result.Stored, "skipped", result.Skipped)
	p.commit(result.Stored)
	return result, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// prepare converts and validates passages and drops the ones already stored.
func (p *Pipeline) prepare(ctx context.Context, passages []Passage, result *Result) ([]*core.Record, error) {
	records := make([]*core.Record, 0, len(passages))
	seen := make(map[core.ID]struct{}, len(passages))
	ids := make([]core.ID, 0, len(passages))

	for i, passage := range passages {
		record := passage.ToRecord()
		if err := core.ValidateRecord(record); err != nil {
			return nil, fmt.Errorf("passage %d: %w", i, err)
		}
		if _, dup := seen[record.Id]; dup {
			result.Skipped++
			continue
		}
		seen[record.Id] = struct{}{}
		records = append(records, record)
		ids = append(ids, record.Id)
	}
	if len(records) == 0 {
		return nil, nil
	}

	existing, err := p.repo.GetRecords(ctx, ids...)
	if err != nil {
		return nil, &core.VectorStoreError{Op: "get", Err: err}
	}
	if len(existing) == 0 {
		return records, nil
	}

	stored := make(map[core.ID]struct{}, len(existing))
	for _, record := range existing {
		stored[record.Id] = struct{}{}
	}
	fresh := records[:0]
	for _, record := range records {
		if _, ok := stored[record.Id]; ok {
			result.Skipped++
			continue
		}
		fresh = append(fresh, record)
	}
	return fresh, nil
}

// embedBatches embeds every batch on the pool and returns the first error.
func (p *Pipeline) embedBatches(ctx context.Context, batches [][]*core.Record) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for _, batch := range batches {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if err := p.embedder.embed(ctx, batch); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()
	return firstErr
}

func (p *Pipeline) commit(stored int) {
	if stored == 0 {
		return
	}
	for _, hook := range p.hooks {
		hook(stored)
	}
}

// split cuts records into consecutive batches of at most size.
func split(records []*core.Record, size int) [][]*core.Record {
	batches := make([][]*core.Record, 0, (len(records)+size-1)/size)
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		batches = append(batches, records[i:end])
	}
	return batches
}
