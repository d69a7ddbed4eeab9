// Package fusion merges independently ranked result lists with reciprocal
// rank fusion (RRF).
package fusion

import (
	"slices"
	"strings"

	"github.com/poiesic/retriever/core"
)

// DefaultK is the RRF smoothing constant.
const DefaultK = 60

// Ranker fuses ranked lists. The zero value is not usable; use NewRanker.
type Ranker struct {
	k int
}

// NewRanker returns a ranker with smoothing constant k. Non-positive values
// select DefaultK.
func NewRanker(k int) *Ranker {
	if k <= 0 {
		k = DefaultK
	}
	return &Ranker{k: k}
}

// K returns the smoothing constant, for diagnostics.
func (r *Ranker) K() int {
	return r.k
}

// Merge fuses lists keyed by record id. The item at 1-indexed rank r of a
// list contributes 1/(k+r); an id present in several lists accumulates every
// contribution. Passage and metadata come from the first list that
// introduced the id.
//
// Results are ordered by descending fused score. Equal scores are ordered by
// ascending id.
func (r *Ranker) Merge(lists ...[]core.ScoredResult) []core.FusedResult {
	index := make(map[core.ID]int)
	fused := make([]core.FusedResult, 0)

	for _, list := range lists {
		for i, item := range list {
			rank := i + 1
			contribution := 1.0 / float64(r.k+rank)

			pos, ok := index[item.Id]
			if !ok {
				pos = len(fused)
				index[item.Id] = pos
				fused = append(fused, core.FusedResult{
					Id:       item.Id,
					Passage:  item.Passage,
					Metadata: item.Metadata,
					Ranks:    make(map[core.Source]int, len(lists)),
				})
			}
			fused[pos].Score += contribution
			if _, seen := fused[pos].Ranks[item.Source]; !seen {
				fused[pos].Ranks[item.Source] = rank
			}
		}
	}

	slices.SortFunc(fused, func(a, b core.FusedResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(string(a.Id), string(b.Id))
		}
	})
	return fused
}

// Merge fuses a dense and a lexical list with DefaultK.
func Merge(dense, lexical []core.ScoredResult) []core.FusedResult {
	return NewRanker(DefaultK).Merge(dense, lexical)
}
