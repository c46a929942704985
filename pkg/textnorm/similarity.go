package textnorm

import "math"

// minTokenLen drops short connective tokens (articles, prepositions) that
// would inflate overlap between unrelated texts.
const minTokenLen = 3

// Similarity scores token overlap between two raw strings on a 0-100 scale.
// Both inputs are normalized first; identical normalized texts score 100 and
// an empty side scores 0. Symmetric.
func Similarity(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}

	setA, setB := tokenSet(na), tokenSet(nb)
	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	if larger == 0 {
		return 0
	}

	common := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			common++
		}
	}

	return int(math.Round(float64(common) / float64(larger) * 100))
}

// tokenSet splits on spaces and keeps tokens of at least minTokenLen runes;
// length is counted in runes, not bytes, so "5º" is as short as "5a".
func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	start, runes := -1, 0
	for i, r := range normalized {
		if r == ' ' {
			if start >= 0 && runes >= minTokenLen {
				set[normalized[start:i]] = struct{}{}
			}
			start, runes = -1, 0
			continue
		}
		if start < 0 {
			start = i
		}
		runes++
	}
	if start >= 0 && runes >= minTokenLen {
		set[normalized[start:]] = struct{}{}
	}
	return set
}
