// Package textnorm provides text normalization and token-overlap similarity
// scoring for comparing legal article text across sources.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops combining marks, and recomposes, which
// turns "Artículo" into "Articulo" without touching base letters.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

const punctuation = `.,;:()"'-`

// Normalize lowercases, removes diacritics and the punctuation set, collapses
// whitespace runs to a single space, and trims. Idempotent; empty input
// yields an empty string.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
