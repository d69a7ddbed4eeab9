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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/retriever"
	"github.com/poiesic/retriever/config"
	"github.com/poiesic/retriever/core"
)

var (
	dbPath     = flag.String("db", "./retriever_db", "path to the database directory")
	collection = flag.String("collection", config.DefaultCollection, "collection to search")
	brand      = flag.String("brand", "", "only search documents whose filename contains this text")
	topK       = flag.Int("k", 5, "number of results")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	db, err := retriever.NewDatabase(*dbPath,
		retriever.WithCollection(*collection),
		retriever.WithCreateIfMissing(false))
	if err != nil {
		panic(err)
	}
	defer db.Close()
	searcher, err := db.NewSearcher()
	if err != nil {
		panic(err)
	}

	ctx := context.Background()

	brands, err := searcher.AvailableBrands(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Available brands: %s\n", strings.Join(brands, ", "))

	query := "How do I troubleshoot a refrigerant leak?"
	if flag.NArg() > 0 {
		query = strings.Join(flag.Args(), " ")
	}
	filter := core.BrandFilter(*brand)

	fmt.Printf("\nSearching for: '%s'\n", query)
	if filter.IsSet() {
		fmt.Printf("Filtering by brand: '%s'\n", filter.Substring())
	}
	results, err := searcher.HybridSearch(ctx, query, *topK, filter)
	if err != nil {
		panic(err)
	}

	fmt.Printf("\n%s\nSEARCH RESULTS\n%s\n", strings.Repeat("=", 60), strings.Repeat("=", 60))
	for i, hit := range results {
		text := hit.Passage
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Printf("\n[%d] Score: %.4f\n", i+1, hit.Score)
		fmt.Printf("Document: %s\n", hit.Metadata[core.MetadataFilename])
		fmt.Printf("Page: %s\n", hit.Metadata[core.MetadataPageNumber])
		fmt.Printf("Chunk: %s\n", hit.Metadata[core.MetadataChunkIndex])
		fmt.Printf("Preview: %s\n", text)
	}
}
