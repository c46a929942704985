package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"ArticlesReconciler/internal/domain"
)

// memRepo mimics the persistence semantics the triage manager relies on:
// one current verdict per question, triage flags moved atomically, summaries
// derived from rows.
type memRepo struct {
	questions map[string]domain.Question
	results   map[string]domain.VerificationResult // by question id
	summaries map[string]domain.VerificationSummary
	recomputs int
	schemaGap bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		questions: map[string]domain.Question{},
		results:   map[string]domain.VerificationResult{},
		summaries: map[string]domain.VerificationSummary{},
	}
}

func (m *memRepo) addQuestion(q domain.Question) { m.questions[q.ID] = q }

func (m *memRepo) QuestionsForArticle(ctx context.Context, lawID, number string) ([]domain.Question, error) {
	var out []domain.Question
	for _, q := range m.questions {
		if q.ArticleNumber == number {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memRepo) SaveResults(ctx context.Context, lawID string, results []domain.VerificationResult) error {
	for _, r := range results {
		r.FixApplied = false
		r.Discarded = false
		m.results[r.QuestionID] = r
	}
	return nil
}

func (m *memRepo) ResultsForArticle(ctx context.Context, lawID, number string) ([]domain.VerificationResult, error) {
	var out []domain.VerificationResult
	for _, r := range m.results {
		if r.ArticleNumber == number {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ApplyFix(ctx context.Context, fix domain.QuestionFix) (domain.VerificationResult, error) {
	q, ok := m.questions[fix.QuestionID]
	if !ok {
		return domain.VerificationResult{}, errors.New("question not found")
	}
	if fix.NewCorrectOption != nil {
		q.CorrectOption = *fix.NewCorrectOption
	}
	q.Explanation = fix.NewExplanation
	m.questions[fix.QuestionID] = q

	r := m.results[fix.QuestionID]
	r.Resolve(domain.TriageFixed)
	m.results[fix.QuestionID] = r
	return r, nil
}

func (m *memRepo) SetDiscarded(ctx context.Context, questionID string, discarded bool) (bool, error) {
	if m.schemaGap {
		return false, domain.ErrSchemaMissing
	}
	r, ok := m.results[questionID]
	if !ok || r.Discarded == discarded {
		return false, nil
	}
	if discarded {
		r.Resolve(domain.TriageDiscarded)
	} else {
		r.Resolve(domain.TriagePending)
	}
	m.results[questionID] = r
	return true, nil
}

func (m *memRepo) RecomputeSummary(ctx context.Context, lawID, number string) (domain.VerificationSummary, error) {
	m.recomputs++
	s := domain.VerificationSummary{ArticleNumber: number}
	for _, q := range m.questions {
		if q.ArticleNumber == number {
			s.Total++
		}
	}
	for _, r := range m.results {
		if r.ArticleNumber != number {
			continue
		}
		s.Verified++
		if r.IsCorrect {
			s.OK++
		}
		if r.FixApplied {
			s.Fixed++
		}
		if r.VerifiedAt.After(s.LastVerifiedAt) {
			s.LastVerifiedAt = r.VerifiedAt
		}
	}
	m.summaries[number] = s
	return s, nil
}

func (m *memRepo) Summaries(ctx context.Context, lawID string, numbers []string) (map[string]domain.VerificationSummary, error) {
	out := map[string]domain.VerificationSummary{}
	for _, n := range numbers {
		if s, ok := m.summaries[n]; ok {
			out[n] = s
		}
	}
	return out, nil
}

func seedRepo() *memRepo {
	repo := newMemRepo()
	repo.addQuestion(domain.Question{ID: "q1", ArticleNumber: "5", CorrectOption: 1, Explanation: "vieja"})
	repo.addQuestion(domain.Question{ID: "q2", ArticleNumber: "5", CorrectOption: 0})
	repo.addQuestion(domain.Question{ID: "q3", ArticleNumber: "5", CorrectOption: 2})
	return repo
}

func seedResults() []domain.VerificationResult {
	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	return []domain.VerificationResult{
		{ID: "r1", QuestionID: "q1", ArticleNumber: "5", IsCorrect: false, CorrectOptionShouldBe: "C", VerifiedAt: at},
		{ID: "r2", QuestionID: "q2", ArticleNumber: "5", IsCorrect: true, VerifiedAt: at},
		{ID: "r3", QuestionID: "q3", ArticleNumber: "5", IsCorrect: false, CorrectOptionShouldBe: "C", VerifiedAt: at},
	}
}

func TestRecordRunRefreshesSummary(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	m := NewManager(repo, nil)

	if err := m.RecordRun(context.Background(), "law-1", seedResults()); err != nil {
		t.Fatalf("record run: %v", err)
	}

	s := repo.summaries["5"]
	if s.Total != 3 || s.Verified != 3 || s.OK != 1 || s.Fixed != 0 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Problems() != 2 {
		t.Fatalf("problems = %d, want 2", s.Problems())
	}
}

func TestApplyFixThenDiscard(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	m := NewManager(repo, nil)
	_ = m.RecordRun(context.Background(), "law-1", seedResults())

	option := 2
	if _, err := m.ApplyFix(context.Background(), "law-1", domain.QuestionFix{
		QuestionID:       "q1",
		NewCorrectOption: &option,
		NewExplanation:   "según el texto consolidado",
		ResultID:         "r1",
	}); err != nil {
		t.Fatalf("apply fix: %v", err)
	}

	r := repo.results["q1"]
	if !r.FixApplied || r.Discarded {
		t.Fatalf("after fix: fixApplied=%v discarded=%v", r.FixApplied, r.Discarded)
	}
	if repo.questions["q1"].CorrectOption != 2 {
		t.Fatalf("question option = %d, want 2", repo.questions["q1"].CorrectOption)
	}
	if s := repo.summaries["5"]; s.Fixed != 1 || s.Problems() != 1 {
		t.Fatalf("summary after fix = %+v (problems %d)", s, s.Problems())
	}

	// Discarding afterwards clears the fix; the flags stay exclusive.
	if err := m.SetDiscarded(context.Background(), "law-1", "5", "q1", true); err != nil {
		t.Fatalf("discard: %v", err)
	}
	r = repo.results["q1"]
	if r.FixApplied || !r.Discarded {
		t.Fatalf("after discard: fixApplied=%v discarded=%v", r.FixApplied, r.Discarded)
	}
	if state, _ := r.Triage(); state != domain.TriageDiscarded {
		t.Fatalf("triage state = %s, want discarded", state)
	}
}

func TestSetDiscardedIdempotent(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	m := NewManager(repo, nil)
	_ = m.RecordRun(context.Background(), "law-1", seedResults())

	if err := m.SetDiscarded(context.Background(), "law-1", "5", "q1", true); err != nil {
		t.Fatalf("first discard: %v", err)
	}
	recomputes := repo.recomputs
	before := repo.summaries["5"]

	// Second identical call: no state change, no summary churn.
	if err := m.SetDiscarded(context.Background(), "law-1", "5", "q1", true); err != nil {
		t.Fatalf("second discard: %v", err)
	}
	if repo.recomputs != recomputes {
		t.Fatal("idempotent discard recomputed the summary")
	}
	if repo.summaries["5"] != before {
		t.Fatal("idempotent discard changed the summary")
	}
}

func TestSetDiscardedSchemaMissing(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	repo.schemaGap = true
	m := NewManager(repo, nil)

	err := m.SetDiscarded(context.Background(), "law-1", "5", "q1", true)
	if !errors.Is(err, domain.ErrSchemaMissing) {
		t.Fatalf("error = %v, want ErrSchemaMissing", err)
	}
}

func TestApplyFixValidation(t *testing.T) {
	t.Parallel()

	m := NewManager(seedRepo(), nil)
	_, err := m.ApplyFix(context.Background(), "law-1", domain.QuestionFix{QuestionID: "q1"})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}
}

func TestProblemsNeverNegative(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	m := NewManager(repo, nil)
	_ = m.RecordRun(context.Background(), "law-1", seedResults())

	ctx := context.Background()
	option := 2

	// Arbitrary fix/discard churn over both failing questions.
	ops := []func() error{
		func() error { _, err := m.ApplyFix(ctx, "law-1", domain.QuestionFix{QuestionID: "q1", ResultID: "r1", NewCorrectOption: &option, NewExplanation: "x"}); return err },
		func() error { return m.SetDiscarded(ctx, "law-1", "5", "q1", true) },
		func() error { return m.SetDiscarded(ctx, "law-1", "5", "q1", false) },
		func() error { _, err := m.ApplyFix(ctx, "law-1", domain.QuestionFix{QuestionID: "q3", ResultID: "r3", NewExplanation: "solo explicación"}); return err },
		func() error { _, err := m.ApplyFix(ctx, "law-1", domain.QuestionFix{QuestionID: "q1", ResultID: "r1", NewCorrectOption: &option, NewExplanation: "y"}); return err },
		func() error { return m.SetDiscarded(ctx, "law-1", "5", "q3", true) },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		s := repo.summaries["5"]
		if s.Problems() < 0 {
			t.Fatalf("op %d: problems went negative: %+v", i, s)
		}
		if s.Problems() != maxInt(0, s.Verified-s.OK-s.Fixed) {
			t.Fatalf("op %d: problems invariant broken: %+v", i, s)
		}
	}
}

func TestLikelyFalsePositive(t *testing.T) {
	t.Parallel()

	q := domain.Question{ID: "q9", CorrectOption: 1}
	r := domain.VerificationResult{QuestionID: "q9", IsCorrect: false, CorrectOptionShouldBe: "B"}
	if !domain.LikelyFalsePositive(q, r) {
		t.Fatal("AI agreeing with current answer should flag a likely false positive")
	}

	r.CorrectOptionShouldBe = "C"
	if domain.LikelyFalsePositive(q, r) {
		t.Fatal("different suggested answer is not a false positive")
	}

	r.CorrectOptionShouldBe = "B"
	r.IsCorrect = true
	if domain.LikelyFalsePositive(q, r) {
		t.Fatal("correct verdicts carry no false-positive hint")
	}
}

func TestArticleReviews(t *testing.T) {
	t.Parallel()

	repo := seedRepo()
	m := NewManager(repo, nil)
	_ = m.RecordRun(context.Background(), "law-1", seedResults())

	reviews, err := m.ArticleReviews(context.Background(), "law-1", "5")
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}

	// q2 verified correct: no triage state, not listed.
	if len(reviews) != 2 {
		t.Fatalf("got %d reviews, want 2", len(reviews))
	}
	for _, rev := range reviews {
		if rev.State != domain.TriagePending {
			t.Fatalf("fresh review state = %s, want pending", rev.State)
		}
	}
	// q3 suggests "C" while its current answer is C (index 2).
	for _, rev := range reviews {
		if rev.Question.ID == "q3" && !rev.LikelyFalsePositive {
			t.Fatal("q3 should surface the false-positive hint")
		}
		if rev.Question.ID == "q1" && rev.LikelyFalsePositive {
			t.Fatal("q1 suggests a different answer, no hint expected")
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
