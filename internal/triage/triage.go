// Package triage tracks operator decisions on AI-suggested corrections and
// keeps the cached per-article verification summaries consistent.
package triage

import (
	"context"
	"fmt"
	"log/slog"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// Manager applies fix/discard decisions through a single transition point and
// recomputes summaries from stored verdicts afterwards, so counters can never
// drift out of step with the flags.
type Manager struct {
	questions ports.QuestionRepository
	logger    *slog.Logger
}

// NewManager wires the triage collaborators.
func NewManager(questions ports.QuestionRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{questions: questions, logger: logger}
}

// RecordRun persists a batch run's verdicts, superseding older ones for the
// same questions, and refreshes the summary of every touched article.
func (m *Manager) RecordRun(ctx context.Context, lawID string, results []domain.VerificationResult) error {
	if len(results) == 0 {
		return nil
	}

	if err := m.questions.SaveResults(ctx, lawID, results); err != nil {
		return fmt.Errorf("save verification results: %w", err)
	}

	touched := make(map[string]struct{})
	for _, r := range results {
		touched[r.ArticleNumber] = struct{}{}
	}
	for number := range touched {
		if _, err := m.questions.RecomputeSummary(ctx, lawID, number); err != nil {
			return fmt.Errorf("recompute summary for article %s: %w", number, err)
		}
	}

	return nil
}

// ApplyFix persists an accepted correction. A nil new option updates only the
// explanation, covering the false-positive case where the AI agrees with the
// current answer but wants a better explanation. Applying a fix always clears
// any discard flag.
func (m *Manager) ApplyFix(ctx context.Context, lawID string, fix domain.QuestionFix) (domain.VerificationResult, error) {
	if fix.QuestionID == "" || fix.ResultID == "" {
		return domain.VerificationResult{}, fmt.Errorf("fix needs question and result ids: %w", domain.ErrValidationFailed)
	}

	result, err := m.questions.ApplyFix(ctx, fix)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("apply fix to question %s: %w", fix.QuestionID, err)
	}

	if _, err := m.questions.RecomputeSummary(ctx, lawID, result.ArticleNumber); err != nil {
		return result, fmt.Errorf("recompute summary for article %s: %w", result.ArticleNumber, err)
	}

	m.logger.Info("fix applied",
		"law", lawID,
		"question", fix.QuestionID,
		"article", result.ArticleNumber,
		"explanation_only", fix.NewCorrectOption == nil)

	return result, nil
}

// SetDiscarded marks or unmarks a verdict as a false positive. Idempotent:
// repeating the same value changes nothing and leaves summaries untouched.
// Discarding clears any applied-fix flag.
func (m *Manager) SetDiscarded(ctx context.Context, lawID, articleNumber, questionID string, discarded bool) error {
	changed, err := m.questions.SetDiscarded(ctx, questionID, discarded)
	if err != nil {
		return fmt.Errorf("set discard on question %s: %w", questionID, err)
	}
	if !changed {
		return nil
	}

	if _, err := m.questions.RecomputeSummary(ctx, lawID, articleNumber); err != nil {
		return fmt.Errorf("recompute summary for article %s: %w", articleNumber, err)
	}

	m.logger.Info("discard toggled", "law", lawID, "question", questionID, "discarded", discarded)
	return nil
}

// Review pairs a question with its latest verdict for triage display.
type Review struct {
	Question            domain.Question
	Result              domain.VerificationResult
	State               domain.TriageState
	LikelyFalsePositive bool
}

// ArticleReviews assembles the triage view of one article: each failed
// verdict with its derived state and the advisory false-positive hint.
func (m *Manager) ArticleReviews(ctx context.Context, lawID, articleNumber string) ([]Review, error) {
	questions, err := m.questions.QuestionsForArticle(ctx, lawID, articleNumber)
	if err != nil {
		return nil, fmt.Errorf("load questions for article %s: %w", articleNumber, err)
	}
	results, err := m.questions.ResultsForArticle(ctx, lawID, articleNumber)
	if err != nil {
		return nil, fmt.Errorf("load results for article %s: %w", articleNumber, err)
	}

	byQuestion := make(map[string]domain.VerificationResult, len(results))
	for _, r := range results {
		byQuestion[r.QuestionID] = r
	}

	reviews := make([]Review, 0, len(questions))
	for _, q := range questions {
		r, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		state, hasTriage := r.Triage()
		if !hasTriage {
			continue
		}
		reviews = append(reviews, Review{
			Question:            q,
			Result:              r,
			State:               state,
			LikelyFalsePositive: domain.LikelyFalsePositive(q, r),
		})
	}

	return reviews, nil
}

// Summaries returns the cached per-article counters for display.
func (m *Manager) Summaries(ctx context.Context, lawID string, articleNumbers []string) (map[string]domain.VerificationSummary, error) {
	return m.questions.Summaries(ctx, lawID, articleNumbers)
}
