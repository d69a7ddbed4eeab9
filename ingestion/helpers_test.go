package ingestion

import (
	"fmt"
	"testing"

	"github.com/poiesic/retriever/storage/badger"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) *badger.PassageRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func manualPassages(n int) []Passage {
	passages := make([]Passage, n)
	for i := range passages {
		passages[i] = Passage{
			Filename:   "Carrier_48TC.pdf",
			PageNumber: i/4 + 1,
			ChunkIndex: i % 4,
			Text:       fmt.Sprintf("check refrigerant charge step %d", i),
		}
	}
	return passages
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum
}
