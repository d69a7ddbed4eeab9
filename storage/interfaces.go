package storage

import (
	"context"

	"github.com/poiesic/retriever/core"
)

// Corpus is the read side of the vector store used by retrieval.
// Implementations must be thread-safe and support concurrent access.
type Corpus interface {
	// QueryByVector returns up to k records nearest to vector, ascending by
	// distance, restricted to records whose metadata satisfies filter.
	// Records without a stored vector are never returned.
	QueryByVector(ctx context.Context, vector []float32, k int, filter core.ScopeFilter) ([]core.VectorMatch, error)

	// EnumerateAll returns every record of the collection in a stable order
	// (insertion order). Two calls without intervening writes return the
	// same sequence.
	EnumerateAll(ctx context.Context) ([]*core.Record, error)
}

// PassageRepository provides read/write operations for a collection of passages.
type PassageRepository interface {
	Corpus

	// AddRecords stores new records. Records that fail validation are rejected.
	// Sets InsertedAt and UpdatedAt. Returns ErrDuplicateKey if an id is
	// already present in the collection.
	AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)

	// UpdateRecords replaces existing records, keeping their position in the
	// enumeration order. Updates UpdatedAt automatically.
	// Returns ErrNotFound if any record doesn't exist.
	UpdateRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)

	// GetRecords retrieves records by id.
	// Returns only the records that exist (no error for missing records).
	GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error)

	// DeleteRecords removes records by id.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteRecords(ctx context.Context, ids ...core.ID) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	// Collection returns the collection name.
	Collection() string

	// Close releases resources held by the repository.
	Close() error
}
