package rules

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, turns punctuation and symbols into spaces and collapses whitespace
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokenize splits a title into normalized tokens
func Tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}

// hasWideScript reports whether s contains characters from scripts written without spaces
func hasWideScript(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Thai) {
			return true
		}
	}
	return false
}

// paddedTitle is the form Term.matches expects
func paddedTitle(title string) string {
	return " " + Normalize(title) + " "
}
