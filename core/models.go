package core

//go:generate go run ../cmd/musgen

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is an opaque identifier for a stored passage.
// IDs are assigned by the ingestion pipeline or supplied by the caller.
type ID string

// IDFromContent generates a deterministic ID from content using BLAKE2b hashing.
// Parts are joined with a unit separator so ("ab", "c") and ("a", "bc") differ.
func IDFromContent(parts ...string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(part))
	}
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Well-known metadata keys.
const (
	// MetadataFilename identifies the source document of a passage.
	MetadataFilename = "filename"
	// MetadataPageNumber is the page the passage was taken from.
	MetadataPageNumber = "page_number"
	// MetadataChunkIndex is the position of the passage within its page.
	MetadataChunkIndex = "chunk_index"
)

// Record is a single passage resident in the vector store.
type Record struct {
	Id         ID
	Passage    string
	Metadata   map[string]string // Must carry MetadataFilename and MetadataPageNumber
	Vector     []float32         // Embedding used for dense search (populated by ingestion)
	InsertedAt time.Time         // When the record was inserted into the store
	UpdatedAt  time.Time         // When the record was last updated
}

// Source identifies which retrieval method produced a result.
type Source int

const (
	// SourceDense marks results from vector similarity search.
	SourceDense Source = iota + 1
	// SourceLexical marks results from BM25 keyword search.
	SourceLexical
)

// String returns the lowercase name of the source.
func (s Source) String() string {
	switch s {
	case SourceDense:
		return "dense"
	case SourceLexical:
		return "lexical"
	default:
		return "unknown"
	}
}

// ScoredResult is a passage ranked by a single retrieval method.
// Scores are only comparable within one result list.
type ScoredResult struct {
	Id       ID
	Passage  string
	Metadata map[string]string
	Score    float64
	Source   Source
}

// FusedResult is a passage ranked by reciprocal rank fusion.
type FusedResult struct {
	Id       ID
	Passage  string
	Metadata map[string]string
	Score    float64

	// Ranks holds the 1-indexed position of the passage in each input list.
	// A source missing from the map did not rank the passage at all.
	Ranks map[Source]int
}

// VectorMatch is a raw nearest-neighbor hit reported by the vector store.
// Smaller distances are more similar.
type VectorMatch struct {
	Record   *Record
	Distance float64
}
