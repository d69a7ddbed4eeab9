package search

import (
	"context"
	"slices"
	"strings"

	"github.com/poiesic/retriever/core"
)

// BrandFromFilename derives a brand from a manual's file name, assuming the
// "Brand_Model.pdf" convention: ".pdf" is removed, then the name is cut at
// the first underscore and the first whitespace-separated word is kept.
// Returns "" when nothing is left.
func BrandFromFilename(filename string) string {
	name := strings.ReplaceAll(filename, ".pdf", "")
	name, _, _ = strings.Cut(name, "_")
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// AvailableBrands lists the distinct brands present in the corpus, sorted.
// Records without a usable filename are skipped.
func (s *Searcher) AvailableBrands(ctx context.Context) ([]string, error) {
	records, err := s.corpus.EnumerateAll(ctx)
	if err != nil {
		return nil, &core.VectorStoreError{Op: "enumerate", Err: err}
	}

	seen := make(map[string]struct{})
	brands := make([]string, 0)
	for _, record := range records {
		if record == nil {
			continue
		}
		brand := BrandFromFilename(record.Metadata[core.MetadataFilename])
		if brand == "" {
			continue
		}
		if _, ok := seen[brand]; ok {
			continue
		}
		seen[brand] = struct{}{}
		brands = append(brands, brand)
	}
	slices.Sort(brands)
	return brands, nil
}
