// Package similarity provides the string and vector comparison primitives
// used for fact deduplication and relevance ranking.
package similarity

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes fact content for comparison: lowercase, collapsed
// whitespace, trailing punctuation stripped.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}

// Tokens splits normalized text into lowercase word tokens.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
