package workflow

import (
	"fmt"
	"strings"

	"ArticlesReconciler/internal/domain"
)

// Filter narrows the comparison results shown during selection. Zero-value
// fields are inactive; MaxSimilarity of 0 means unbounded above.
type Filter struct {
	Kinds          []domain.Kind
	MinSimilarity  int
	MaxSimilarity  int
	NumberContains string
}

func (f Filter) matches(r domain.ComparisonResult) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if r.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinSimilarity > 0 || f.MaxSimilarity > 0 {
		sim, ok := relevantSimilarity(r)
		if !ok {
			return false
		}
		if f.MinSimilarity > 0 && sim < f.MinSimilarity {
			return false
		}
		if f.MaxSimilarity > 0 && sim > f.MaxSimilarity {
			return false
		}
	}

	if f.NumberContains != "" && !strings.Contains(r.ArticleNumber, f.NumberContains) {
		return false
	}

	return true
}

// relevantSimilarity picks the score that drove the classification. Results
// existing on only one side have no meaningful score and never match a
// similarity range.
func relevantSimilarity(r domain.ComparisonResult) (int, bool) {
	switch r.Kind {
	case domain.KindTitleMismatch:
		return r.TitleSimilarity, true
	case domain.KindContentMismatch:
		return r.ContentSimilarity, true
	case domain.KindMatching:
		if r.ContentSimilarity < r.TitleSimilarity {
			return r.ContentSimilarity, true
		}
		return r.TitleSimilarity, true
	}
	return 0, false
}

// Selection tracks which discrepant articles the operator has marked for
// update. Membership is keyed by article number.
type Selection struct {
	results  []domain.ComparisonResult
	byNumber map[string]domain.ComparisonResult
	selected map[string]struct{}
}

func newSelection(results []domain.ComparisonResult) *Selection {
	s := &Selection{
		results:  results,
		byNumber: make(map[string]domain.ComparisonResult, len(results)),
		selected: make(map[string]struct{}),
	}
	for _, r := range results {
		s.byNumber[r.ArticleNumber] = r
	}
	return s
}

// Toggle flips membership of one article. Articles without a stored id
// cannot be selected: there is nothing in storage to update.
func (s *Selection) Toggle(articleNumber string) error {
	result, ok := s.byNumber[articleNumber]
	if !ok {
		return fmt.Errorf("article %s: not part of this comparison run", articleNumber)
	}
	if !result.Selectable() {
		return fmt.Errorf("article %s (%s): %w", articleNumber, result.Kind, domain.ErrValidationFailed)
	}

	if _, on := s.selected[articleNumber]; on {
		delete(s.selected, articleNumber)
	} else {
		s.selected[articleNumber] = struct{}{}
	}
	return nil
}

// Filtered returns the results matching the filter, in comparison order.
func (s *Selection) Filtered(f Filter) []domain.ComparisonResult {
	out := make([]domain.ComparisonResult, 0, len(s.results))
	for _, r := range s.results {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// SelectAll adds every selectable result matching the filter.
func (s *Selection) SelectAll(f Filter) {
	for _, r := range s.results {
		if f.matches(r) && r.Selectable() {
			s.selected[r.ArticleNumber] = struct{}{}
		}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.selected = make(map[string]struct{})
}

// IsSelected reports membership for one article number.
func (s *Selection) IsSelected(articleNumber string) bool {
	_, ok := s.selected[articleNumber]
	return ok
}

// Count returns how many articles are currently selected.
func (s *Selection) Count() int {
	return len(s.selected)
}

// Selected returns the chosen results in comparison order.
func (s *Selection) Selected() []domain.ComparisonResult {
	out := make([]domain.ComparisonResult, 0, len(s.selected))
	for _, r := range s.results {
		if _, ok := s.selected[r.ArticleNumber]; ok {
			out = append(out, r)
		}
	}
	return out
}
