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

package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/retriever/ai"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

// ReembedConfig holds configuration for the reembedding operation.
type ReembedConfig struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MissingOnly restricts the pass to records without a stored vector
	MissingOnly bool
}

// DefaultReembedConfig returns a ReembedConfig with sensible defaults.
func DefaultReembedConfig() *ReembedConfig {
	return &ReembedConfig{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
	}
}

// Reembedder replaces the vectors of every record in a collection.
type Reembedder struct {
	repo     storage.PassageRepository
	embedder *batchEmbedder
	config   *ReembedConfig
	progress io.Writer
	iterator *RecordIterator
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.PassageRepository, embedder ai.Embedder, config *ReembedConfig, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultReembedConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo: repo,
		embedder: &batchEmbedder{
			embedder:   embedder,
			maxRetries: max(config.MaxRetries, 1),
			retryDelay: config.RetryDelay,
		},
		config:   config,
		progress: progress,
		iterator: NewRecordIterator(repo, config.BatchSize),
		logger:   slog.Default().With("component", "reembedder"),
	}
}

// Run re-embeds the collection and returns the number of records updated.
// Records keep their ids, metadata and position. Progress is reported to
// the configured writer.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.countTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records to reembed in collection %s\n", r.repo.Collection())
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, "Reembedding", total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, r.keep, func(records []*core.Record) error {
		if err := r.embedder.embed(ctx, records); err != nil {
			return err
		}
		if _, err := r.repo.UpdateRecords(ctx, records...); err != nil {
			return &core.VectorStoreError{Op: "update", Err: err}
		}
		processed += len(records)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "processed", processed, "err", err)
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))
	r.logger.Info("reembedding complete", "records", processed, "elapsed", elapsed)

	return processed, nil
}

func (r *Reembedder) keep(record *core.Record) bool {
	return !r.config.MissingOnly || len(record.Vector) == 0
}

func (r *Reembedder) countTargets(ctx context.Context) (int, error) {
	if !r.config.MissingOnly {
		return r.repo.Count(ctx)
	}
	records, err := r.repo.EnumerateAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, record := range records {
		if r.keep(record) {
			n++
		}
	}
	return n, nil
}
