// Package verify orchestrates batch AI verification runs over articles.
// Articles are processed strictly sequentially: external rate limits and
// deterministic progress reporting both rule out parallelism here.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// DefaultDelay paces article-level verification calls.
const DefaultDelay = 500 * time.Millisecond

// ArticleError marks one article whose verification call failed.
type ArticleError struct {
	ArticleNumber string
	Message       string
}

// ArticleResult holds the per-question verdicts of one article.
type ArticleResult struct {
	ArticleNumber string
	Results       []domain.VerificationResult
}

// RunOutcome aggregates a full batch run. Every input article lands in
// exactly one of PerArticle or Errors.
type RunOutcome struct {
	Plan       domain.BatchPlan
	PerArticle []ArticleResult
	Errors     []ArticleError
}

// Questions flattens all per-question verdicts in processing order.
func (o RunOutcome) Questions() []domain.VerificationResult {
	var out []domain.VerificationResult
	for _, ar := range o.PerArticle {
		out = append(out, ar.Results...)
	}
	return out
}

// Options tunes a batch run. The zero value uses DefaultDelay and reports no
// progress.
type Options struct {
	Delay      time.Duration
	OnProgress func(domain.BatchProgress)
}

// Orchestrator runs the two-phase plan/execute verification procedure.
type Orchestrator struct {
	verifier ports.Verifier
	sink     ports.ErrorSink
	logger   *slog.Logger
}

// New wires the orchestrator collaborators.
func New(verifier ports.Verifier, sink ports.ErrorSink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{verifier: verifier, sink: sink, logger: logger}
}

// Plan sizes the run before any verification call is made. It only
// estimates; nothing is verified.
func (o *Orchestrator) Plan(ctx context.Context, lawID string, articleNumbers []string, model string) (domain.BatchPlan, error) {
	if len(articleNumbers) == 0 {
		return domain.BatchPlan{}, fmt.Errorf("no articles to plan: %w", domain.ErrValidationFailed)
	}
	plan, err := o.verifier.EstimateBatchPlan(ctx, lawID, articleNumbers, model)
	if err != nil {
		return domain.BatchPlan{}, fmt.Errorf("estimate batch plan: %w", err)
	}
	return plan, nil
}

// Run verifies every article in the supplied order. A single article's
// failure is recorded and the batch continues; collected results are never
// lost. Cancelling the context stops the run cooperatively: articles not yet
// processed each receive an error entry carrying the context error, so every
// input article still yields exactly one result or one error.
func (o *Orchestrator) Run(ctx context.Context, lawID string, articleNumbers []string, provider domain.Provider, opts Options) (RunOutcome, error) {
	plan, err := o.Plan(ctx, lawID, articleNumbers, provider.Model)
	if err != nil {
		return RunOutcome{}, err
	}

	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	outcome := RunOutcome{Plan: plan}
	done := 0

	for i, number := range articleNumbers {
		// The first wait consumes the limiter's initial token and returns at
		// once; every later wait paces a full delay between articles.
		if err := limiter.Wait(ctx); err != nil {
			o.abort(lawID, provider, articleNumbers[i:], err, &outcome)
			return outcome, err
		}

		results, err := o.verifier.VerifyArticleQuestions(ctx, lawID, number, provider.ID, provider.Model)
		if err != nil {
			o.recordFailure(lawID, number, provider, err, &outcome)
		} else {
			outcome.PerArticle = append(outcome.PerArticle, ArticleResult{ArticleNumber: number, Results: results})
			done += len(results)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(domain.BatchProgress{
				ArticleIndex:   i + 1,
				ArticleCount:   len(articleNumbers),
				QuestionsDone:  done,
				QuestionsTotal: plan.TotalQuestions,
				CurrentArticle: number,
				CurrentBatch:   batchInfo(plan, number),
			})
		}
	}

	o.logger.Info("batch run finished",
		"law", lawID,
		"provider", provider.ID,
		"articles", len(articleNumbers),
		"verified", done,
		"errors", len(outcome.Errors))

	return outcome, nil
}

// recordFailure keeps the error both in the live outcome and in the sink.
func (o *Orchestrator) recordFailure(lawID, number string, provider domain.Provider, cause error, outcome *RunOutcome) {
	outcome.Errors = append(outcome.Errors, ArticleError{ArticleNumber: number, Message: cause.Error()})

	o.logger.Warn("article verification failed", "law", lawID, "article", number, "error", cause)

	if o.sink == nil {
		return
	}
	entry := domain.ErrorLogEntry{
		ID:            uuid.NewString(),
		LawID:         lawID,
		ArticleNumber: number,
		Provider:      provider.ID,
		Model:         provider.Model,
		Message:       cause.Error(),
		OccurredAt:    time.Now().UTC(),
	}
	var aiErr *domain.AICallError
	if errors.As(cause, &aiErr) {
		entry.RawPayload = aiErr.RawPayload
	}
	// The sink is best-effort; a sink failure must not break the batch.
	if err := o.sink.Record(context.Background(), entry); err != nil {
		o.logger.Warn("error sink write failed", "law", lawID, "article", number, "error", err)
	}
}

func (o *Orchestrator) abort(lawID string, provider domain.Provider, remaining []string, cause error, outcome *RunOutcome) {
	for _, number := range remaining {
		outcome.Errors = append(outcome.Errors, ArticleError{ArticleNumber: number, Message: cause.Error()})
	}
	o.logger.Warn("batch run aborted", "law", lawID, "provider", provider.ID, "skipped", len(remaining), "error", cause)
}

func batchInfo(plan domain.BatchPlan, articleNumber string) string {
	for _, ap := range plan.PerArticle {
		if ap.ArticleNumber == articleNumber {
			return fmt.Sprintf("%d questions in %d batches", ap.QuestionCount, ap.Batches)
		}
	}
	return ""
}
