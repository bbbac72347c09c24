package models

import (
	"strings"
	"unicode"
)

// Tokenize splits text on non-alphanumeric boundaries and lower-cases each token.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !isKeywordRune(r) })
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, strings.ToLower(field))
	}
	return out
}

func isKeywordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
