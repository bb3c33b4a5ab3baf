package query

import "strings"

// NormalizeQuestion folds case and whitespace and drops trailing punctuation, so that trivially
// different phrasings of the same question share a cache entry.
func NormalizeQuestion(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	return strings.TrimRight(normalized, "?!. ")
}
