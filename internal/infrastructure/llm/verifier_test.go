package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ArticlesReconciler/internal/config"
	"ArticlesReconciler/internal/domain"
)

type fakeQuestions struct {
	byArticle map[string][]domain.Question
}

func (f *fakeQuestions) QuestionsForArticle(ctx context.Context, lawID, number string) ([]domain.Question, error) {
	return f.byArticle[number], nil
}

func (f *fakeQuestions) SaveResults(ctx context.Context, lawID string, results []domain.VerificationResult) error {
	return nil
}

func (f *fakeQuestions) ResultsForArticle(ctx context.Context, lawID, number string) ([]domain.VerificationResult, error) {
	return nil, nil
}

func (f *fakeQuestions) ApplyFix(ctx context.Context, fix domain.QuestionFix) (domain.VerificationResult, error) {
	return domain.VerificationResult{}, nil
}

func (f *fakeQuestions) SetDiscarded(ctx context.Context, questionID string, discarded bool) (bool, error) {
	return false, nil
}

func (f *fakeQuestions) RecomputeSummary(ctx context.Context, lawID, number string) (domain.VerificationSummary, error) {
	return domain.VerificationSummary{}, nil
}

func (f *fakeQuestions) Summaries(ctx context.Context, lawID string, numbers []string) (map[string]domain.VerificationSummary, error) {
	return nil, nil
}

type fakeArticles struct{}

func (fakeArticles) FetchLaw(ctx context.Context, lawID string) (domain.Law, error) {
	return domain.Law{ID: lawID, Name: "Ley 39/2015", BOEID: "BOE-A-2015-10565"}, nil
}

func (fakeArticles) ListArticles(ctx context.Context, lawID string) ([]domain.StoredArticle, error) {
	return nil, nil
}

func (fakeArticles) UpdateArticles(ctx context.Context, lawID string, updates []domain.ArticleUpdate) (domain.UpdateOutcome, error) {
	return domain.UpdateOutcome{}, nil
}

func (fakeArticles) UpdateHistory(ctx context.Context, lawID string) ([]domain.UpdateLogEntry, error) {
	return nil, nil
}

type fakeSource struct{}

func (fakeSource) FetchArticles(ctx context.Context, boeID string) ([]domain.CanonicalArticle, error) {
	return nil, nil
}

func (fakeSource) FetchArticleContent(ctx context.Context, boeID, number string) (domain.CanonicalArticle, error) {
	return domain.CanonicalArticle{Number: number, Title: "Objeto.", Content: "Texto consolidado."}, nil
}

func seedQuestions(n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			ArticleNumber: "5",
			Text:          fmt.Sprintf("Pregunta %d", i+1),
			CorrectOption: i % 4,
		})
	}
	return qs
}

// echoChatServer answers each chat call with one verdict per question found
// in the user message, so batch splits come back with matching ids.
func echoChatServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
		}

		user := req.Messages[len(req.Messages)-1].Content
		_, payload, ok := strings.Cut(user, "Questions:\n")
		if !ok {
			t.Errorf("user message missing question payload: %q", user)
		}
		var items []struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			t.Errorf("decode question payload: %v", err)
		}

		verdicts := make([]map[string]any, 0, len(items))
		for _, item := range items {
			verdicts = append(verdicts, map[string]any{
				"question_id":              item.ID,
				"is_correct":               item.ID == "q1",
				"confidence":               90,
				"explanation":              "contrastado con el texto",
				"correct_option_should_be": " c ",
			})
		}
		body, _ := json.Marshal(verdicts)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": string(body)}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestVerifier(t *testing.T, endpoint string, batchSize int, questions map[string][]domain.Question) (*Verifier, *Catalog) {
	t.Helper()
	catalog := NewCatalog([]config.ProviderConfig{
		{ID: "openai", DisplayName: "OpenAI", Endpoint: endpoint, Model: "gpt-4o-mini", APIKey: "test-key"},
	})
	v := NewVerifier(catalog, &fakeQuestions{byArticle: questions}, fakeArticles{}, fakeSource{},
		VerifierConfig{BatchSize: batchSize}, nil)
	return v, catalog
}

func TestEstimateBatchPlanMakesNoChatCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := echoChatServer(t, &calls)
	v, _ := newTestVerifier(t, srv.URL, 3, map[string][]domain.Question{
		"5": seedQuestions(7),
		"9": seedQuestions(2),
	})

	plan, err := v.EstimateBatchPlan(context.Background(), "law-1", []string{"5", "9"}, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if calls.Load() != 0 {
		t.Fatalf("planning made %d chat calls", calls.Load())
	}
	if plan.TotalQuestions != 9 || plan.TotalBatches != 4 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.PerArticle[0].Batches != 3 || plan.PerArticle[1].Batches != 1 {
		t.Fatalf("per-article batches = %+v", plan.PerArticle)
	}
}

func TestVerifyArticleQuestions(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := echoChatServer(t, &calls)
	v, catalog := newTestVerifier(t, srv.URL, 3, map[string][]domain.Question{
		"5": seedQuestions(7),
	})

	results, err := v.VerifyArticleQuestions(context.Background(), "law-1", "5", "openai", "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if calls.Load() != 3 {
		t.Fatalf("got %d chat calls, want 3 batches", calls.Load())
	}
	if len(results) != 7 {
		t.Fatalf("got %d results, want 7", len(results))
	}

	first := results[0]
	if first.QuestionID != "q1" || !first.IsCorrect || first.Confidence != 90 {
		t.Fatalf("first result = %+v", first)
	}
	if first.ArticleNumber != "5" || first.Provider != "openai" || first.Model != "gpt-4o-mini" {
		t.Fatalf("result attribution = %+v", first)
	}
	// Suggested letters are trimmed and uppercased.
	if first.CorrectOptionShouldBe != "C" {
		t.Fatalf("suggested option = %q", first.CorrectOptionShouldBe)
	}
	if first.ID == "" || first.VerifiedAt.IsZero() {
		t.Fatalf("result missing id or timestamp: %+v", first)
	}

	p, err := catalog.Get("openai")
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if p.Status != domain.ProviderWorking {
		t.Fatalf("provider status = %s, want working", p.Status)
	}
}

func TestVerifyMalformedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "lo siento, no puedo"}},
			},
		})
	}))
	defer srv.Close()

	v, catalog := newTestVerifier(t, srv.URL, 3, map[string][]domain.Question{
		"5": seedQuestions(2),
	})

	_, err := v.VerifyArticleQuestions(context.Background(), "law-1", "5", "openai", "")
	var callErr *domain.AICallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v, want AICallError", err)
	}
	if callErr.RawPayload != "lo siento, no puedo" {
		t.Fatalf("raw payload = %q", callErr.RawPayload)
	}

	p, _ := catalog.Get("openai")
	if p.Status != domain.ProviderFailed {
		t.Fatalf("provider status = %s, want failed", p.Status)
	}
}

func TestVerifyQuestion(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := echoChatServer(t, &calls)
	v, _ := newTestVerifier(t, srv.URL, 3, map[string][]domain.Question{
		"5": seedQuestions(4),
	})

	result, err := v.VerifyQuestion(context.Background(), "law-1", "5", "q3", "openai")
	if err != nil {
		t.Fatalf("verify question: %v", err)
	}
	if result.QuestionID != "q3" {
		t.Fatalf("result for %q, want q3", result.QuestionID)
	}
	if calls.Load() != 1 {
		t.Fatalf("got %d chat calls, want 1", calls.Load())
	}

	if _, err := v.VerifyQuestion(context.Background(), "law-1", "5", "missing", "openai"); err == nil {
		t.Fatal("expected error for unlinked question")
	}
}

func TestVerifyUnknownProvider(t *testing.T) {
	t.Parallel()

	v, _ := newTestVerifier(t, "http://unused", 3, map[string][]domain.Question{
		"5": seedQuestions(1),
	})

	if _, err := v.VerifyArticleQuestions(context.Background(), "law-1", "5", "nope", ""); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestParseVerdicts(t *testing.T) {
	t.Parallel()

	plain := `[{"question_id":"q1","is_correct":true}]`
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain array", plain, true},
		{"json fence", "```json\n" + plain + "\n```", true},
		{"bare fence", "```\n" + plain + "\n```", true},
		{"prose", "the answer looks fine to me", false},
		{"object not array", `{"question_id":"q1"}`, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			verdicts, err := parseVerdicts(tc.raw)
			if tc.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tc.ok)
			}
			if tc.ok && (len(verdicts) != 1 || verdicts[0].QuestionID != "q1") {
				t.Fatalf("verdicts = %+v", verdicts)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog([]config.ProviderConfig{
		{ID: "openai", DisplayName: "OpenAI", Model: "gpt-4o-mini"},
		{ID: "deepseek", DisplayName: "DeepSeek", Model: "deepseek-chat"},
	})

	providers := catalog.List()
	if len(providers) != 2 || providers[0].ID != "openai" || providers[1].ID != "deepseek" {
		t.Fatalf("list = %+v", providers)
	}
	for _, p := range providers {
		if p.Status != domain.ProviderUntested {
			t.Fatalf("initial status = %s", p.Status)
		}
	}

	catalog.MarkFailed("deepseek")
	catalog.MarkWorking("openai")
	catalog.MarkWorking("ghost") // unknown ids are ignored

	if p, _ := catalog.Get("openai"); p.Status != domain.ProviderWorking {
		t.Fatalf("openai status = %s", p.Status)
	}
	if p, _ := catalog.Get("deepseek"); p.Status != domain.ProviderFailed {
		t.Fatalf("deepseek status = %s", p.Status)
	}
	if _, err := catalog.Get("ghost"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestChatClientMisconfigured(t *testing.T) {
	t.Parallel()

	c := NewChatClient("", "")
	if _, err := c.Complete(context.Background(), "gpt-4o-mini", "sys", "user"); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}

func TestChatClientErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "test-key")
	_, err := c.Complete(context.Background(), "gpt-4o-mini", "sys", "user")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v, want surfaced body", err)
	}
}
