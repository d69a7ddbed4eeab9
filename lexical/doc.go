// Package lexical implements the keyword side of hybrid retrieval.
//
// An Index is an immutable BM25 (Okapi) snapshot of every passage that
// satisfies a scope filter at build time. Passages are tokenized by
// lowercasing and splitting on whitespace; queries go through the same
// tokenizer. Punctuation is kept, so "leak?" and "leak" are different terms.
//
// A Cache owns the current snapshot for one searcher. It rebuilds when the
// requested filter differs from the retained one, collapses concurrent
// rebuilds for the same filter, and can be invalidated after the corpus
// changes.
//
//	cache, err := lexical.NewCache(repo)
//	idx, rebuilt, err := cache.Acquire(ctx, core.BrandFilter("Carrier"))
//	results := idx.Search("refrigerant leak", 20)
package lexical
