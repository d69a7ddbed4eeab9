package fusion

import (
	"testing"

	"github.com/poiesic/retriever/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(source core.Source, ids ...string) []core.ScoredResult {
	out := make([]core.ScoredResult, len(ids))
	for i, id := range ids {
		out[i] = core.ScoredResult{
			Id:       core.ID(id),
			Passage:  source.String() + ":" + id,
			Metadata: map[string]string{core.MetadataFilename: source.String() + ".pdf"},
			Score:    1 - float64(i)*0.1,
			Source:   source,
		}
	}
	return out
}

func fusedIDs(results []core.FusedResult) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.Id
	}
	return out
}

func TestNewRanker_Defaults(t *testing.T) {
	assert.Equal(t, DefaultK, NewRanker(0).K())
	assert.Equal(t, DefaultK, NewRanker(-3).K())
	assert.Equal(t, 10, NewRanker(10).K())
}

func TestMerge_SymmetricScores(t *testing.T) {
	dense := scored(core.SourceDense, "d1", "d2")
	lexical := scored(core.SourceLexical, "d2", "d1")

	results := Merge(dense, lexical)
	require.Len(t, results, 2)

	want := 1.0/61 + 1.0/62
	assert.InDelta(t, want, results[0].Score, 1e-15)
	assert.InDelta(t, want, results[1].Score, 1e-15)
	assert.Equal(t, results[0].Score, results[1].Score)

	// Equal scores fall back to ascending id, independent of input order.
	assert.Equal(t, []core.ID{"d1", "d2"}, fusedIDs(results))
	assert.Equal(t, []core.ID{"d1", "d2"}, fusedIDs(Merge(lexical, dense)))
}

func TestMerge_SingleAndDoubleHits(t *testing.T) {
	dense := scored(core.SourceDense, "both", "denseonly")
	lexical := scored(core.SourceLexical, "both")

	results := Merge(dense, lexical)
	require.Len(t, results, 2)

	assert.Equal(t, core.ID("both"), results[0].Id)
	assert.InDelta(t, 2.0/61, results[0].Score, 1e-15)
	assert.Equal(t, map[core.Source]int{core.SourceDense: 1, core.SourceLexical: 1}, results[0].Ranks)

	assert.Equal(t, core.ID("denseonly"), results[1].Id)
	assert.InDelta(t, 1.0/62, results[1].Score, 1e-15)
	assert.Equal(t, map[core.Source]int{core.SourceDense: 2}, results[1].Ranks)
}

func TestMerge_DenseOnlyRankOne(t *testing.T) {
	results := Merge(scored(core.SourceDense, "x"), nil)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0/61, results[0].Score)

	both := Merge(scored(core.SourceDense, "y"), scored(core.SourceLexical, "y"))
	assert.Greater(t, both[0].Score, results[0].Score)
}

func TestMerge_TextFromFirstList(t *testing.T) {
	results := Merge(scored(core.SourceDense, "a"), scored(core.SourceLexical, "a"))
	require.Len(t, results, 1)
	assert.Equal(t, "dense:a", results[0].Passage)
	assert.Equal(t, "dense.pdf", results[0].Metadata[core.MetadataFilename])

	reversed := Merge(scored(core.SourceLexical, "a"), scored(core.SourceDense, "a"))
	assert.Equal(t, "lexical:a", reversed[0].Passage)
	assert.Equal(t, results[0].Score, reversed[0].Score)
}

func TestMerge_IdentityIsID(t *testing.T) {
	dense := []core.ScoredResult{{Id: "p1", Passage: "same text", Source: core.SourceDense}}
	lexical := []core.ScoredResult{{Id: "p2", Passage: "same text", Source: core.SourceLexical}}

	results := Merge(dense, lexical)
	assert.Len(t, results, 2)
}

func TestMerge_EndToEndOrdering(t *testing.T) {
	dense := scored(core.SourceDense, "a", "b", "c")
	lexical := scored(core.SourceLexical, "a", "c")

	results := Merge(dense, lexical)
	assert.Equal(t, []core.ID{"a", "c", "b"}, fusedIDs(results))
	assert.InDelta(t, 2.0/61, results[0].Score, 1e-15)
	assert.InDelta(t, 1.0/63+1.0/62, results[1].Score, 1e-15)
	assert.InDelta(t, 1.0/62, results[2].Score, 1e-15)
}

func TestMerge_CustomK(t *testing.T) {
	results := NewRanker(1).Merge(scored(core.SourceDense, "a", "b"))
	require.Len(t, results, 2)
	assert.Equal(t, 0.5, results[0].Score)
	assert.InDelta(t, 1.0/3, results[1].Score, 1e-15)
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Empty(t, NewRanker(0).Merge())
}
