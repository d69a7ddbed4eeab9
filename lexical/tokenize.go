package lexical

import "strings"

// Tokenize lowercases text and splits it on Unicode whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
