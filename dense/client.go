// Package dense adapts the embedding service and vector store into a ranked
// similarity search.
package dense

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

var (
	// ErrEmbedderRequired is returned when a client is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCorpusRequired is returned when a client is created without a corpus.
	ErrCorpusRequired = errors.New("corpus required")
)

// Client issues nearest-neighbour queries for text. Every call goes to the
// store; nothing is cached and nothing is retried.
type Client struct {
	embedder ai.Embedder
	corpus   storage.Corpus
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "dense-search")
		return nil
	}
}

// NewClient creates a dense search client.
func NewClient(embedder ai.Embedder, corpus storage.Corpus, opts ...Option) (*Client, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if corpus == nil {
		return nil, ErrCorpusRequired
	}

	c := &Client{
		embedder: embedder,
		corpus:   corpus,
		logger:   slog.Default().With("component", "dense-search"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Search embeds query and returns up to topK records nearest to it that
// satisfy filter, in store order. Similarity is reported as
// score = 1 - cosine distance, which lies in [-1, 1].
//
// Embedding failures are returned as *core.EncoderError and store failures as
// *core.VectorStoreError.
func (c *Client) Search(ctx context.Context, query string, topK int, filter core.ScopeFilter) ([]core.ScoredResult, error) {
	vector, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		c.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, &core.EncoderError{Err: err}
	}

	matches, err := c.corpus.QueryByVector(ctx, vector, topK, filter)
	if err != nil {
		c.logger.Error("error querying for similar records", "filter", filter.String(), "err", err)
		return nil, &core.VectorStoreError{Op: "query", Err: err}
	}

	results := make([]core.ScoredResult, 0, len(matches))
	for _, match := range matches {
		if match.Record == nil {
			continue
		}
		results = append(results, core.ScoredResult{
			Id:       match.Record.Id,
			Passage:  match.Record.Passage,
			Metadata: match.Record.Metadata,
			Score:    1 - match.Distance,
			Source:   core.SourceDense,
		})
	}

	c.logger.Debug("dense search complete", "hits", len(results), "filter", filter.String())
	return results, nil
}
