package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/core"
	"golang.org/x/time/rate"
)

// batchEmbedder wraps an ai.Embedder with rate limiting, retries and
// normalization. Safe for concurrent use.
type batchEmbedder struct {
	embedder   ai.Embedder
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// embed assigns normalized vectors to records in place.
func (b *batchEmbedder) embed(ctx context.Context, records []*core.Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Passage
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		vectors, err = b.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		return checkEmbeddings(texts, vectors)
	}, b.maxRetries, b.retryDelay)
	if err != nil {
		return &core.EncoderError{Err: fmt.Errorf("embedding %d passages: %w", len(texts), err)}
	}

	for i := range records {
		records[i].Vector = NormalizeVector(vectors[i])
	}
	return nil
}
