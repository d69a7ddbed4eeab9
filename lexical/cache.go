package lexical

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
	"golang.org/x/sync/singleflight"
)

// Cache retains the lexical snapshot for the most recently requested filter.
// It is safe for concurrent use.
type Cache struct {
	corpus storage.Corpus
	logger *slog.Logger

	mu         sync.RWMutex
	current    *Index
	generation uint64

	group   singleflight.Group
	version atomic.Uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache) error

// WithCacheLogger sets a custom logger.
// Default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "lexical-cache")
		return nil
	}
}

// NewCache creates an empty cache over corpus.
func NewCache(corpus storage.Corpus, opts ...CacheOption) (*Cache, error) {
	if corpus == nil {
		return nil, ErrCorpusRequired
	}
	c := &Cache{
		corpus: corpus,
		logger: slog.Default().With("component", "lexical-cache"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type acquired struct {
	index   *Index
	rebuilt bool
}

// Acquire returns a snapshot built for filter. The retained snapshot is
// reused when its filter equals the requested one; otherwise the index is
// rebuilt from the corpus and retained. The boolean reports a rebuild.
//
// When no record matches filter the result is an empty snapshot, which is
// cached like any other.
func (c *Cache) Acquire(ctx context.Context, filter core.ScopeFilter) (*Index, bool, error) {
	if idx := c.lookup(filter); idx != nil {
		return idx, false, nil
	}

	for {
		v, err, shared := c.group.Do(filter.Key(), func() (any, error) {
			return c.rebuild(ctx, filter)
		})
		if err != nil {
			// A joined build can fail because the caller that started it
			// went away. Retry with our own context if it is still live.
			if shared && isContextErr(err) && ctx.Err() == nil {
				continue
			}
			return nil, false, err
		}
		res := v.(acquired)
		return res.index, res.rebuilt, nil
	}
}

// Current returns the retained snapshot, or nil. It is a diagnostic view
// of the slot; searches go through Acquire.
func (c *Cache) Current() *Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Invalidate discards the retained snapshot. The next Acquire rebuilds.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.generation++
	c.logger.Debug("lexical index invalidated")
}

// Version returns the number of snapshots built so far.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

func (c *Cache) lookup(filter core.ScopeFilter) *Index {
	if idx := c.Current(); idx != nil && idx.filter.Equal(filter) {
		return idx
	}
	return nil
}

func (c *Cache) rebuild(ctx context.Context, filter core.ScopeFilter) (acquired, error) {
	// Another flight may have published this filter while we queued.
	if idx := c.lookup(filter); idx != nil {
		return acquired{index: idx}, nil
	}

	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	start := time.Now()
	idx, err := Build(ctx, c.corpus, filter)
	if errors.Is(err, core.ErrEmptyCorpus) {
		idx, err = emptyIndex(filter), nil
	}
	if err != nil {
		c.logger.Error("failed to build lexical index", "filter", filter.String(), "err", err)
		return acquired{}, err
	}
	idx.version = c.version.Add(1)

	c.mu.Lock()
	// Keep a snapshot built before an invalidation out of the slot.
	if c.generation == generation {
		c.current = idx
	}
	c.mu.Unlock()

	c.logger.Info("rebuilt lexical index",
		"filter", filter.String(),
		"documents", idx.Len(),
		"version", idx.version,
		"elapsed", time.Since(start))

	return acquired{index: idx, rebuilt: true}, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
