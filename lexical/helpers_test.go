package lexical

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/poiesic/retriever/core"
)

// sliceCorpus is an in-memory storage.Corpus that counts enumerations.
type sliceCorpus struct {
	mu          sync.Mutex
	records     []*core.Record
	err         error
	enumerates  atomic.Int64
	enumerateFn func()
}

func newSliceCorpus(records ...*core.Record) *sliceCorpus {
	return &sliceCorpus{records: records}
}

func (c *sliceCorpus) QueryByVector(ctx context.Context, vector []float32, k int, filter core.ScopeFilter) ([]core.VectorMatch, error) {
	return nil, nil
}

func (c *sliceCorpus) EnumerateAll(ctx context.Context) ([]*core.Record, error) {
	c.enumerates.Add(1)
	if c.enumerateFn != nil {
		c.enumerateFn()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]*core.Record, len(c.records))
	copy(out, c.records)
	return out, nil
}

func (c *sliceCorpus) add(record *core.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

func rec(id, filename, passage string) *core.Record {
	return &core.Record{
		Id:      core.ID(id),
		Passage: passage,
		Metadata: map[string]string{
			core.MetadataFilename:   filename,
			core.MetadataPageNumber: "1",
		},
	}
}

func resultIDs(results []core.ScoredResult) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.Id
	}
	return out
}
