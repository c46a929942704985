// Package compare classifies stored articles against their canonical gazette
// counterparts. Pure functions; no I/O.
package compare

import (
	"sort"
	"strconv"
	"strings"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/pkg/textnorm"
)

// MatchThreshold is the similarity score at or above which two texts are
// treated as equal.
const MatchThreshold = 95

// Options tunes a comparison run. The zero value uses MatchThreshold.
type Options struct {
	Threshold int
}

// Report is the outcome of one comparison run. Results are ordered by
// article number; each number present in either input appears exactly once.
type Report struct {
	Results []domain.ComparisonResult
	Counts  domain.KindCounts
}

// Discrepancies returns the results that are not matching.
func (r Report) Discrepancies() []domain.ComparisonResult {
	out := make([]domain.ComparisonResult, 0, r.Counts.Discrepancies())
	for _, res := range r.Results {
		if res.Kind.IsDiscrepancy() {
			out = append(out, res)
		}
	}
	return out
}

// Compare joins canonical and stored articles by number and classifies each
// into exactly one kind.
func Compare(canonical []domain.CanonicalArticle, stored []domain.StoredArticle, opts Options) Report {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = MatchThreshold
	}

	canonicalByNumber := make(map[string]domain.CanonicalArticle, len(canonical))
	for _, art := range canonical {
		canonicalByNumber[art.Number] = art
	}
	storedByNumber := make(map[string]domain.StoredArticle, len(stored))
	for _, art := range stored {
		storedByNumber[art.Number] = art
	}

	numbers := unionNumbers(canonicalByNumber, storedByNumber)

	report := Report{Results: make([]domain.ComparisonResult, 0, len(numbers))}
	for _, number := range numbers {
		result := classify(number, canonicalByNumber, storedByNumber, threshold)
		report.Results = append(report.Results, result)
		switch result.Kind {
		case domain.KindMatching:
			report.Counts.Matching++
		case domain.KindTitleMismatch:
			report.Counts.TitleMismatch++
		case domain.KindContentMismatch:
			report.Counts.ContentMismatch++
		case domain.KindExtraInDB:
			report.Counts.ExtraInDB++
		case domain.KindMissingInDB:
			report.Counts.MissingInDB++
		}
	}

	return report
}

func classify(number string, canonical map[string]domain.CanonicalArticle, stored map[string]domain.StoredArticle, threshold int) domain.ComparisonResult {
	canonicalArt, inCanonical := canonical[number]
	storedArt, inStored := stored[number]

	switch {
	case !inCanonical:
		return domain.ComparisonResult{
			ArticleNumber: number,
			Kind:          domain.KindExtraInDB,
			StoredID:      storedArt.ID,
			StoredTitle:   storedArt.Title,
		}
	case !inStored:
		return domain.ComparisonResult{
			ArticleNumber:  number,
			Kind:           domain.KindMissingInDB,
			CanonicalTitle: canonicalArt.Title,
		}
	}

	titleSim := textnorm.Similarity(canonicalArt.Title, storedArt.Title)
	contentSim := textnorm.Similarity(canonicalArt.Content, storedArt.Content)

	kind := domain.KindContentMismatch
	switch {
	case titleSim >= threshold && contentSim >= threshold:
		kind = domain.KindMatching
	case titleSim < threshold:
		// Content similarity stays attached so the operator can see whether
		// the body is independently broken.
		kind = domain.KindTitleMismatch
	}

	return domain.ComparisonResult{
		ArticleNumber:     number,
		Kind:              kind,
		TitleSimilarity:   titleSim,
		ContentSimilarity: contentSim,
		StoredID:          storedArt.ID,
		CanonicalTitle:    canonicalArt.Title,
		StoredTitle:       storedArt.Title,
	}
}

func unionNumbers(canonical map[string]domain.CanonicalArticle, stored map[string]domain.StoredArticle) []string {
	seen := make(map[string]struct{}, len(canonical)+len(stored))
	numbers := make([]string, 0, len(canonical)+len(stored))
	for number := range canonical {
		seen[number] = struct{}{}
		numbers = append(numbers, number)
	}
	for number := range stored {
		if _, ok := seen[number]; !ok {
			numbers = append(numbers, number)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return lessArticleNumber(numbers[i], numbers[j]) })
	return numbers
}

// lessArticleNumber orders numerically where possible so "2" sorts before
// "10"; suffixed numbers like "5 bis" fall back to string order.
func lessArticleNumber(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	if errA == nil && errB == nil {
		return na < nb
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}
