package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

// PassageRepository implements storage.PassageRepository for one BadgerDB collection.
//
// Records are keyed by an insertion sequence so prefix iteration yields them
// in insertion order. A secondary index maps ids to their sequence. Use a
// single repository per collection per process: sequence leases are
// per-instance.
type PassageRepository struct {
	backend    *Backend
	collection string
	idSeq      *badger.Sequence
	logger     *slog.Logger
}

var _ storage.PassageRepository = (*PassageRepository)(nil)

// NewPassageRepository opens a repository on collection, creating the
// collection if it does not exist yet.
func NewPassageRepository(backend *Backend, collection string) (*PassageRepository, error) {
	if err := backend.CreateCollection(collection); err != nil {
		return nil, err
	}
	return newPassageRepository(backend, collection)
}

// OpenPassageRepository opens a repository on an existing collection.
// Returns storage.ErrCollectionNotFound if the collection was never created.
func OpenPassageRepository(backend *Backend, collection string) (*PassageRepository, error) {
	found, err := backend.HasCollection(collection)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collection)
	}
	return newPassageRepository(backend, collection)
}

func newPassageRepository(backend *Backend, collection string) (*PassageRepository, error) {
	idSeq, err := backend.GetSequence(makeSequenceName(collection))
	if err != nil {
		return nil, err
	}

	return &PassageRepository{
		backend:    backend,
		collection: collection,
		idSeq:      idSeq,
		logger:     slog.Default().With("component", "passage-repository", "collection", collection),
	}, nil
}

// Collection returns the collection name.
func (r *PassageRepository) Collection() string {
	return r.collection
}

// Close releases the insertion sequence.
func (r *PassageRepository) Close() error {
	return r.idSeq.Release()
}

// AddRecords adds one or more records to the collection.
func (r *PassageRepository) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		seen := make(map[core.ID]struct{}, len(records))
		now := time.Now().UTC()

		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, dup := seen[record.Id]; dup {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.Id)
			}
			seen[record.Id] = struct{}{}

			idxKey := makeIDIndexKey(r.collection, record.Id)
			if _, err := tx.Get(idxKey); err == nil {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.Id)
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			seq, err := r.nextSeq()
			if err != nil {
				return err
			}

			if record.InsertedAt.IsZero() {
				record.InsertedAt = now
			}
			record.UpdatedAt = now

			if err := tx.Set(makeRecordKey(r.collection, seq), storage.MarshalRecord(record)); err != nil {
				return err
			}
			if err := tx.Set(idxKey, encodeSeq(seq)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("added records", "count", len(records))
	return records, nil
}

// UpdateRecords replaces existing records in place.
func (r *PassageRepository) UpdateRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, record := range records {
			seq, found, err := r.lookupSeq(tx, record.Id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, record.Id)
			}

			key := makeRecordKey(r.collection, seq)
			old, err := r.readRecord(tx, key)
			if err != nil {
				return err
			}
			if old != nil && record.InsertedAt.IsZero() {
				record.InsertedAt = old.InsertedAt
			}
			record.UpdatedAt = now

			if err := tx.Set(key, storage.MarshalRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecords retrieves records by id, skipping ids that don't exist.
func (r *PassageRepository) GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error) {
	result := make([]*core.Record, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			seq, found, err := r.lookupSeq(tx, id)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			record, err := r.readRecord(tx, makeRecordKey(r.collection, seq))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// DeleteRecords removes records by id.
func (r *PassageRepository) DeleteRecords(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			seq, found, err := r.lookupSeq(tx, id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
			}
			if err := tx.Delete(makeRecordKey(r.collection, seq)); err != nil {
				return err
			}
			if err := tx.Delete(makeIDIndexKey(r.collection, id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Count returns the number of records in the collection.
func (r *PassageRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeIDIndexPrefix(r.collection)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// EnumerateAll returns every record in insertion order.
func (r *PassageRepository) EnumerateAll(ctx context.Context) ([]*core.Record, error) {
	var records []*core.Record
	err := r.backend.scanRecords(ctx, makeRecordPrefix(r.collection), func(record *core.Record) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// QueryByVector returns up to k records nearest to vector by cosine
// distance, restricted to records matching filter. Equal distances keep
// insertion order.
func (r *PassageRepository) QueryByVector(ctx context.Context, vector []float32, k int, filter core.ScopeFilter) ([]core.VectorMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	var matches []core.VectorMatch
	err := r.backend.scanRecords(ctx, makeRecordPrefix(r.collection), func(record *core.Record) error {
		if len(record.Vector) == 0 {
			return nil
		}
		if !filter.Matches(record.Metadata) {
			return nil
		}
		if len(record.Vector) != len(vector) {
			return fmt.Errorf("%w: query dimension %d does not match record %s dimension %d",
				storage.ErrInvalidQuery, len(vector), record.Id, len(record.Vector))
		}
		matches = append(matches, core.VectorMatch{
			Record:   record,
			Distance: cosineDistance(vector, record.Vector),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b core.VectorMatch) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// nextSeq returns the next insertion sequence value.
// BadgerDB sequences can return 0 on first call, so we skip it.
func (r *PassageRepository) nextSeq() (uint64, error) {
	seq, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return r.idSeq.Next()
	}
	return seq, nil
}

func (r *PassageRepository) lookupSeq(tx *badger.Txn, id core.ID) (uint64, bool, error) {
	item, err := tx.Get(makeIDIndexKey(r.collection, id))
	if err == badger.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		var err error
		seq, err = decodeSeq(val)
		return err
	})
	return seq, err == nil, err
}

func (r *PassageRepository) readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record *core.Record
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		return err
	})
	return record, err
}
