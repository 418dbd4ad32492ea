package transcribe

import (
	"strings"
	"unicode"
)

// symbolsStripped are ASCII symbols removed alongside Unicode punctuation.
const symbolsStripped = "$+<=>^`|~"

// Normalize lowercases text, strips punctuation, and splits it into words.
// Whitespace runs of any kind separate words; empty tokens are dropped.
func Normalize(text string) []string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || strings.ContainsRune(symbolsStripped, r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(text)
}

// NormalizeString returns the normalized words joined by single spaces.
func NormalizeString(text string) string {
	return strings.Join(Normalize(text), " ")
}
