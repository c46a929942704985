package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

const defaultBatchSize = 5

// VerifierConfig tunes how questions are packed into chat calls.
type VerifierConfig struct {
	BatchSize    int
	SystemPrompt string
}

// Verifier checks quiz questions against the canonical article text through
// a catalog provider. One article call is split internally into sub-batches
// of BatchSize questions each.
type Verifier struct {
	catalog   *Catalog
	questions ports.QuestionRepository
	articles  ports.ArticleRepository
	source    ports.CanonicalSource
	cfg       VerifierConfig
	logger    *slog.Logger
}

var _ ports.Verifier = (*Verifier)(nil)

// NewVerifier wires the verification adapter.
func NewVerifier(catalog *Catalog, questions ports.QuestionRepository, articles ports.ArticleRepository, source ports.CanonicalSource, cfg VerifierConfig, logger *slog.Logger) *Verifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		catalog:   catalog,
		questions: questions,
		articles:  articles,
		source:    source,
		cfg:       cfg,
		logger:    logger,
	}
}

// EstimateBatchPlan sizes a run from stored question counts alone; it makes
// no chat calls.
func (v *Verifier) EstimateBatchPlan(ctx context.Context, lawID string, articleNumbers []string, model string) (domain.BatchPlan, error) {
	plan := domain.BatchPlan{BatchSize: v.cfg.BatchSize}

	for _, number := range articleNumbers {
		questions, err := v.questions.QuestionsForArticle(ctx, lawID, number)
		if err != nil {
			return domain.BatchPlan{}, fmt.Errorf("count questions for article %s: %w", number, err)
		}
		batches := (len(questions) + v.cfg.BatchSize - 1) / v.cfg.BatchSize
		plan.PerArticle = append(plan.PerArticle, domain.ArticlePlan{
			ArticleNumber: number,
			QuestionCount: len(questions),
			Batches:       batches,
		})
		plan.TotalQuestions += len(questions)
		plan.TotalBatches += batches
	}

	return plan, nil
}

// VerifyArticleQuestions verifies every question of one article.
func (v *Verifier) VerifyArticleQuestions(ctx context.Context, lawID, articleNumber, providerID, model string) ([]domain.VerificationResult, error) {
	questions, err := v.questions.QuestionsForArticle(ctx, lawID, articleNumber)
	if err != nil {
		return nil, fmt.Errorf("load questions for article %s: %w", articleNumber, err)
	}
	return v.verify(ctx, lawID, articleNumber, providerID, model, questions)
}

// VerifyQuestion verifies a single question.
func (v *Verifier) VerifyQuestion(ctx context.Context, lawID, articleNumber, questionID, providerID string) (domain.VerificationResult, error) {
	questions, err := v.questions.QuestionsForArticle(ctx, lawID, articleNumber)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("load questions for article %s: %w", articleNumber, err)
	}

	for _, q := range questions {
		if q.ID != questionID {
			continue
		}
		results, err := v.verify(ctx, lawID, articleNumber, providerID, "", []domain.Question{q})
		if err != nil {
			return domain.VerificationResult{}, err
		}
		if len(results) == 0 {
			return domain.VerificationResult{}, fmt.Errorf("question %s: backend returned no verdict", questionID)
		}
		return results[0], nil
	}

	return domain.VerificationResult{}, fmt.Errorf("question %s not linked to article %s", questionID, articleNumber)
}

func (v *Verifier) verify(ctx context.Context, lawID, articleNumber, providerID, model string, questions []domain.Question) ([]domain.VerificationResult, error) {
	if len(questions) == 0 {
		return nil, nil
	}

	provider, err := v.catalog.Get(providerID)
	if err != nil {
		return nil, err
	}
	client, err := v.catalog.client(providerID)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = provider.Model
	}

	law, err := v.articles.FetchLaw(ctx, lawID)
	if err != nil {
		return nil, fmt.Errorf("fetch law %s: %w", lawID, err)
	}

	article, err := v.source.FetchArticleContent(ctx, law.BOEID, articleNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch canonical article %s: %w", articleNumber, err)
	}

	var results []domain.VerificationResult
	for start := 0; start < len(questions); start += v.cfg.BatchSize {
		end := start + v.cfg.BatchSize
		if end > len(questions) {
			end = len(questions)
		}
		batch := questions[start:end]

		raw, err := client.Complete(ctx, model, v.cfg.SystemPrompt, buildPrompt(article, batch))
		if err != nil {
			v.catalog.MarkFailed(providerID)
			return nil, fmt.Errorf("verify article %s batch %d: %w", articleNumber, start/v.cfg.BatchSize+1, err)
		}

		verdicts, err := parseVerdicts(raw)
		if err != nil {
			v.catalog.MarkFailed(providerID)
			return nil, &domain.AICallError{
				Message:    fmt.Sprintf("verify article %s: malformed verdict payload: %v", articleNumber, err),
				RawPayload: raw,
			}
		}

		results = append(results, toResults(verdicts, articleNumber, providerID, model)...)
	}

	v.catalog.MarkWorking(providerID)
	v.logger.Debug("article verified",
		"law", lawID,
		"article", articleNumber,
		"provider", providerID,
		"questions", len(questions),
		"verdicts", len(results))

	return results, nil
}

const defaultSystemPrompt = "You review multiple-choice quiz questions against the exact legal article text provided. " +
	"For each question decide whether the marked answer is correct according to the article. " +
	"Reply with a JSON array only, one object per question, using keys: " +
	"question_id, is_correct, confidence (0-100), explanation, article_quote, " +
	"suggested_fix, correct_option_should_be (letter A-D or empty), new_explanation."

type verdict struct {
	QuestionID            string `json:"question_id"`
	IsCorrect             bool   `json:"is_correct"`
	Confidence            int    `json:"confidence"`
	Explanation           string `json:"explanation"`
	ArticleQuote          string `json:"article_quote"`
	SuggestedFix          string `json:"suggested_fix"`
	CorrectOptionShouldBe string `json:"correct_option_should_be"`
	NewExplanation        string `json:"new_explanation"`
}

func buildPrompt(article domain.CanonicalArticle, questions []domain.Question) string {
	type promptQuestion struct {
		ID           string    `json:"id"`
		Text         string    `json:"text"`
		Options      [4]string `json:"options"`
		MarkedAnswer string    `json:"marked_answer"`
		Explanation  string    `json:"explanation"`
	}

	items := make([]promptQuestion, 0, len(questions))
	for _, q := range questions {
		items = append(items, promptQuestion{
			ID:           q.ID,
			Text:         q.Text,
			Options:      q.Options,
			MarkedAnswer: domain.OptionLetter(q.CorrectOption),
			Explanation:  q.Explanation,
		})
	}
	payload, _ := json.Marshal(items)

	var b strings.Builder
	fmt.Fprintf(&b, "Artículo %s. %s\n\n%s\n\nQuestions:\n%s", article.Number, article.Title, article.Content, payload)
	return b.String()
}

// parseVerdicts tolerates markdown code fences around the JSON array.
func parseVerdicts(raw string) ([]verdict, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var verdicts []verdict
	if err := json.Unmarshal([]byte(trimmed), &verdicts); err != nil {
		return nil, fmt.Errorf("decode verdict array: %w", err)
	}
	return verdicts, nil
}

func toResults(verdicts []verdict, articleNumber, providerID, model string) []domain.VerificationResult {
	now := time.Now().UTC()
	results := make([]domain.VerificationResult, 0, len(verdicts))
	for _, vd := range verdicts {
		results = append(results, domain.VerificationResult{
			ID:                    uuid.NewString(),
			QuestionID:            vd.QuestionID,
			ArticleNumber:         articleNumber,
			IsCorrect:             vd.IsCorrect,
			Confidence:            vd.Confidence,
			Explanation:           vd.Explanation,
			ArticleQuote:          vd.ArticleQuote,
			SuggestedFix:          vd.SuggestedFix,
			CorrectOptionShouldBe: strings.ToUpper(strings.TrimSpace(vd.CorrectOptionShouldBe)),
			NewExplanation:        vd.NewExplanation,
			Provider:              providerID,
			Model:                 model,
			VerifiedAt:            now,
		})
	}
	return results
}
