package chunker

import (
	"strings"
	"unicode"
)

const allowedPunct = ".,!?;:-()"

// Normalize strips characters outside the allow-list (letters, digits, marks,
// underscore, whitespace and basic punctuation), collapses whitespace runs to
// single spaces and trims the result.
func Normalize(text string) string {
	kept := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(kept), " ")
}

func keepRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsNumber(r), unicode.IsMark(r):
		return true
	case r == '_', unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(allowedPunct, r)
}
