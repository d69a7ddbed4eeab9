package lexical

// Scores returns the BM25 score of every document in enumeration order.
func (idx *Index) Scores(query string) []float64 {
	terms := Tokenize(query)
	scores := make([]float64, idx.Len())
	for pos := range scores {
		scores[pos] = idx.score(terms, pos)
	}
	return scores
}
