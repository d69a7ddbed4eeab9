package lexical

import "errors"

var (
	// ErrCorpusRequired is returned when a cache is created without a corpus.
	ErrCorpusRequired = errors.New("corpus required")
)
