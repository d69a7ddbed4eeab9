package lexical

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

// BM25 Okapi parameters.
const (
	K1      = 1.5
	B       = 0.75
	Epsilon = 0.25
)

// Index is an immutable BM25 snapshot over the passages selected by a filter.
// Document positions follow corpus enumeration order.
type Index struct {
	ids       []core.ID
	passages  []string
	metadata  []map[string]string
	termFreqs []map[string]int
	docLens   []int
	avgdl     float64
	idf       map[string]float64
	postings  map[string]*roaring.Bitmap

	filter  core.ScopeFilter
	version uint64
	builtAt time.Time
}

// Build enumerates the corpus, keeps the records matching filter in
// enumeration order and indexes them. Returns core.ErrEmptyCorpus when no
// record matches.
func Build(ctx context.Context, corpus storage.Corpus, filter core.ScopeFilter) (*Index, error) {
	records, err := corpus.EnumerateAll(ctx)
	if err != nil {
		return nil, &core.VectorStoreError{Op: "enumerate", Err: err}
	}

	var (
		ids      []core.ID
		passages []string
		metadata []map[string]string
		tokens   [][]string
	)
	for _, record := range records {
		if record == nil || !filter.Matches(record.Metadata) {
			continue
		}
		ids = append(ids, record.Id)
		passages = append(passages, record.Passage)
		metadata = append(metadata, maps.Clone(record.Metadata))
		tokens = append(tokens, Tokenize(record.Passage))
	}

	if len(ids) == 0 {
		return nil, core.ErrEmptyCorpus
	}

	return newIndex(ids, passages, metadata, tokens, filter), nil
}

// emptyIndex is the snapshot used when no record matches filter.
func emptyIndex(filter core.ScopeFilter) *Index {
	return &Index{
		idf:      map[string]float64{},
		postings: map[string]*roaring.Bitmap{},
		filter:   filter,
		builtAt:  time.Now().UTC(),
	}
}

// newIndex computes BM25 statistics. The parallel slices must have equal
// length; a mismatch is a programming error and panics.
func newIndex(ids []core.ID, passages []string, metadata []map[string]string, tokens [][]string, filter core.ScopeFilter) *Index {
	n := len(ids)
	if len(passages) != n || len(metadata) != n || len(tokens) != n {
		panic(fmt.Errorf("%w: ids=%d passages=%d metadata=%d documents=%d",
			core.ErrInconsistentIndex, n, len(passages), len(metadata), len(tokens)))
	}

	idx := &Index{
		ids:       ids,
		passages:  passages,
		metadata:  metadata,
		termFreqs: make([]map[string]int, n),
		docLens:   make([]int, n),
		idf:       make(map[string]float64),
		postings:  make(map[string]*roaring.Bitmap),
		filter:    filter,
		builtAt:   time.Now().UTC(),
	}

	total := 0
	for i, doc := range tokens {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(doc)
		total += len(doc)

		for term := range tf {
			bm, ok := idx.postings[term]
			if !ok {
				bm = roaring.New()
				idx.postings[term] = bm
			}
			bm.Add(uint32(i))
		}
	}

	if n > 0 {
		idx.avgdl = float64(total) / float64(n)
	}
	if idx.avgdl == 0 {
		idx.avgdl = 1
	}

	// Negative idf (terms in more than half the documents) is replaced by a
	// floor of Epsilon times the mean idf.
	var idfSum float64
	var negative []string
	for term, bm := range idx.postings {
		df := float64(bm.GetCardinality())
		value := math.Log(float64(n)-df+0.5) - math.Log(df+0.5)
		idx.idf[term] = value
		idfSum += value
		if value < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) > 0 {
		floor := Epsilon * idfSum / float64(len(idx.idf))
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}

	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.ids)
}

// Filter returns the scope filter the snapshot was built for.
func (idx *Index) Filter() core.ScopeFilter {
	return idx.filter
}

// Version returns the build counter value assigned by the owning cache.
// Snapshots built outside a cache have version 0.
func (idx *Index) Version() uint64 {
	return idx.version
}

// BuiltAt returns the build time.
func (idx *Index) BuiltAt() time.Time {
	return idx.builtAt
}

type scoredDoc struct {
	pos   int
	score float64
}

// Search scores the query against every document and returns at most topK
// results with a strictly positive score, best first. Equal scores keep
// enumeration order. The list is never padded. Each result carries its own
// copy of the document metadata.
func (idx *Index) Search(query string, topK int) []core.ScoredResult {
	results := []core.ScoredResult{}
	if topK <= 0 || idx.Len() == 0 {
		return results
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return results
	}

	// Documents sharing no term with the query score exactly 0 and would be
	// dropped, so only the union of postings is scored.
	candidates := roaring.New()
	for _, term := range terms {
		if bm, ok := idx.postings[term]; ok {
			candidates.Or(bm)
		}
	}

	scored := make([]scoredDoc, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		pos := int(it.Next())
		scored = append(scored, scoredDoc{pos: pos, score: idx.score(terms, pos)})
	}

	slices.SortStableFunc(scored, func(a, b scoredDoc) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	for _, d := range scored {
		if d.score <= 0 {
			continue
		}
		results = append(results, core.ScoredResult{
			Id:       idx.ids[d.pos],
			Passage:  idx.passages[d.pos],
			Metadata: maps.Clone(idx.metadata[d.pos]),
			Score:    d.score,
			Source:   core.SourceLexical,
		})
	}
	return results
}

func (idx *Index) score(terms []string, pos int) float64 {
	tfs := idx.termFreqs[pos]
	norm := K1 * (1 - B + B*float64(idx.docLens[pos])/idx.avgdl)

	var score float64
	for _, term := range terms {
		tf := float64(tfs[term])
		if tf == 0 {
			continue
		}
		score += idx.idf[term] * (tf * (K1 + 1) / (tf + norm))
	}
	return score
}
