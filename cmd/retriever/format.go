package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/retriever/core"
)

const previewLength = 200

// printResults writes search results in the report layout used by the CLI.
func printResults(w io.Writer, query string, filter core.ScopeFilter, results []core.FusedResult) {
	fmt.Fprintf(w, "\nSearching for: '%s'\n", query)
	if filter.IsSet() {
		fmt.Fprintf(w, "Filtering by brand: '%s'\n", filter.Substring())
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nSEARCH RESULTS\n%s\n", rule, rule)

	if len(results) == 0 {
		fmt.Fprintln(w, "\nNo results.")
		return
	}
	for i, result := range results {
		fmt.Fprintf(w, "\n[%d] Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "Document: %s\n", result.Metadata[core.MetadataFilename])
		fmt.Fprintf(w, "Page: %s\n", result.Metadata[core.MetadataPageNumber])
		fmt.Fprintf(w, "Chunk: %s\n", result.Metadata[core.MetadataChunkIndex])
		fmt.Fprintf(w, "Preview: %s\n", preview(result.Passage, previewLength))
	}
}

func printBrands(w io.Writer, brands []string) {
	fmt.Fprintln(w, "Available brands:")
	for _, brand := range brands {
		fmt.Fprintf(w, "  - %s\n", brand)
	}
}

// preview returns the first n runes of text, with "..." appended when cut.
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
