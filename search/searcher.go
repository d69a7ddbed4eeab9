package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/dense"
	"github.com/poiesic/retriever/fusion"
	"github.com/poiesic/retriever/lexical"
	"github.com/poiesic/retriever/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTopK is the result count configuration and the CLI start from.
	DefaultTopK = 5

	// DefaultCandidateDepth is how many candidates each leg contributes to fusion.
	DefaultCandidateDepth = 20
)

// Searcher runs hybrid searches over a corpus.
type Searcher struct {
	corpus         storage.Corpus
	dense          *dense.Client
	cache          *lexical.Cache
	ranker         *fusion.Ranker
	candidateDepth int
	rrfK           int
	monitorFactory func() SearchMonitor
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCandidateDepth sets how many results each leg returns before fusion.
// Default is DefaultCandidateDepth.
func WithCandidateDepth(depth int) Option {
	return func(s *Searcher) error {
		if depth <= 0 {
			return ErrInvalidCandidateDepth
		}
		s.candidateDepth = depth
		return nil
	}
}

// WithRRFConstant sets the fusion smoothing constant.
// Default is fusion.DefaultK.
func WithRRFConstant(k int) Option {
	return func(s *Searcher) error {
		s.rrfK = k
		return nil
	}
}

// WithMonitorFactory supplies a monitor for every HybridSearch call that
// doesn't pass its own.
func WithMonitorFactory(factory func() SearchMonitor) Option {
	return func(s *Searcher) error {
		s.monitorFactory = factory
		return nil
	}
}

// NewSearcher creates a new searcher with its own lexical cache.
func NewSearcher(corpus storage.Corpus, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if corpus == nil {
		return nil, ErrCorpusRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		corpus:         corpus,
		candidateDepth: DefaultCandidateDepth,
		rrfK:           fusion.DefaultK,
		logger:         slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	denseClient, err := dense.NewClient(provider.Embedder(), corpus, dense.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	cache, err := lexical.NewCache(corpus, lexical.WithCacheLogger(s.logger))
	if err != nil {
		return nil, err
	}

	s.dense = denseClient
	s.cache = cache
	s.ranker = fusion.NewRanker(s.rrfK)
	s.logger = s.logger.With("component", "searcher")
	s.logger.Debug("searcher ready",
		"candidate_depth", s.candidateDepth,
		"rrf_k", s.ranker.K())
	return s, nil
}

// Cache returns the lexical cache owned by the searcher.
func (s *Searcher) Cache() *lexical.Cache {
	return s.cache
}

// HybridSearch returns at most topK passages for query, restricted to
// filter, ranked by reciprocal rank fusion of dense and lexical results.
// A zero topK yields an empty slice without touching the index or the
// encoder; a negative topK fails with ErrInvalidTopK. An empty scope yields
// an empty slice and no error.
func (s *Searcher) HybridSearch(ctx context.Context, query string, topK int, filter core.ScopeFilter) ([]core.FusedResult, error) {
	return s.HybridSearchWithMonitor(ctx, query, topK, filter, nil)
}

// HybridSearchWithMonitor is HybridSearch with an explicit monitor.
// A nil monitor falls back to the configured factory, then to a no-op.
func (s *Searcher) HybridSearchWithMonitor(ctx context.Context, query string, topK int, filter core.ScopeFilter, monitor SearchMonitor) ([]core.FusedResult, error) {
	if monitor == nil {
		monitor = s.newMonitor()
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	monitor.Start(query, filter)

	if topK == 0 {
		results := []core.FusedResult{}
		monitor.Finish(results)
		return results, nil
	}

	// 1. Make sure the lexical index matches the requested scope
	index, rebuilt, err := s.cache.Acquire(ctx, filter)
	if err != nil {
		s.logger.Error("error acquiring lexical index", "filter", filter.String(), "err", err)
		monitor.Failed(err)
		return nil, err
	}
	monitor.AfterIndexAcquired(index.Version(), index.Len(), rebuilt)

	// 2. Nothing in scope
	if index.Len() == 0 {
		s.logger.Debug("no documents in scope", "filter", filter.String())
		results := []core.FusedResult{}
		monitor.Finish(results)
		return results, nil
	}

	// 3. Dense and lexical legs are independent
	var denseResults, lexicalResults []core.ScoredResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseResults, err = s.dense.Search(gctx, query, s.candidateDepth, filter)
		return err
	})
	g.Go(func() error {
		lexicalResults = index.Search(query, s.candidateDepth)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("hybrid search failed", "query", query, "err", err)
		monitor.Failed(err)
		return nil, err
	}
	monitor.AfterDenseSearch(denseResults)
	monitor.AfterLexicalSearch(lexicalResults)

	// 4. Fuse
	fused := s.ranker.Merge(denseResults, lexicalResults)
	monitor.AfterFusion(fused)

	// 5. Truncate
	if len(fused) > topK {
		fused = fused[:topK]
	}

	s.logger.Debug("hybrid search complete",
		"query", query,
		"filter", filter.String(),
		"dense", len(denseResults),
		"lexical", len(lexicalResults),
		"results", len(fused))
	monitor.Finish(fused)
	return fused, nil
}

func (s *Searcher) newMonitor() SearchMonitor {
	if s.monitorFactory != nil {
		if m := s.monitorFactory(); m != nil {
			return m
		}
	}
	return &noopMonitor{}
}
