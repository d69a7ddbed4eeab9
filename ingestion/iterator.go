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

	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

// RecordIterator iterates over all records of a collection in batches,
// in enumeration order.
type RecordIterator struct {
	corpus    storage.Corpus
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records per batch; values <= 0 select DefaultBatchSize
func NewRecordIterator(corpus storage.Corpus, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		corpus:    corpus,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of records accepted by keep.
// A nil keep accepts every record.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, keep func(*core.Record) bool, fn func([]*core.Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := it.corpus.EnumerateAll(ctx)
	if err != nil {
		return err
	}
	if keep != nil {
		kept := records[:0]
		for _, record := range records {
			if keep(record) {
				kept = append(kept, record)
			}
		}
		records = kept
	}

	for _, batch := range split(records, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
