package ports

import (
	"context"
	"time"

	"ArticlesReconciler/internal/domain"
)

// CanonicalSource reads the authoritative gazette text. The canonical side is
// a live external read; nothing fetched through it is persisted.
type CanonicalSource interface {
	FetchArticles(ctx context.Context, boeID string) ([]domain.CanonicalArticle, error)
	FetchArticleContent(ctx context.Context, boeID, articleNumber string) (domain.CanonicalArticle, error)
}

// ArticleRepository owns the stored copy of each law's articles.
type ArticleRepository interface {
	FetchLaw(ctx context.Context, lawID string) (domain.Law, error)
	ListArticles(ctx context.Context, lawID string) ([]domain.StoredArticle, error)
	// UpdateArticles applies each item independently: one failing article is
	// collected into the outcome without aborting the rest. Every applied
	// item appends an UpdateLogEntry.
	UpdateArticles(ctx context.Context, lawID string, updates []domain.ArticleUpdate) (domain.UpdateOutcome, error)
	UpdateHistory(ctx context.Context, lawID string) ([]domain.UpdateLogEntry, error)
}

// QuestionRepository reads quiz questions and persists verification verdicts,
// triage flags, and the cached per-article summaries.
type QuestionRepository interface {
	QuestionsForArticle(ctx context.Context, lawID, articleNumber string) ([]domain.Question, error)
	// SaveResults replaces any previous verdict for the same question.
	SaveResults(ctx context.Context, lawID string, results []domain.VerificationResult) error
	ResultsForArticle(ctx context.Context, lawID, articleNumber string) ([]domain.VerificationResult, error)
	// ApplyFix persists an accepted correction and returns the updated verdict.
	ApplyFix(ctx context.Context, fix domain.QuestionFix) (domain.VerificationResult, error)
	// SetDiscarded toggles the discard flag; the returned bool reports whether
	// anything changed. Returns domain.ErrSchemaMissing when the persisted
	// discard field does not exist yet.
	SetDiscarded(ctx context.Context, questionID string, discarded bool) (bool, error)
	// RecomputeSummary derives the per-article counters from stored verdicts
	// and upserts the cache row.
	RecomputeSummary(ctx context.Context, lawID, articleNumber string) (domain.VerificationSummary, error)
	Summaries(ctx context.Context, lawID string, articleNumbers []string) (map[string]domain.VerificationSummary, error)
}

// Verifier is the abstract "check questions against article text" capability.
type Verifier interface {
	// EstimateBatchPlan sizes a run without verifying anything.
	EstimateBatchPlan(ctx context.Context, lawID string, articleNumbers []string, model string) (domain.BatchPlan, error)
	VerifyQuestion(ctx context.Context, lawID, articleNumber, questionID, providerID string) (domain.VerificationResult, error)
	VerifyArticleQuestions(ctx context.Context, lawID, articleNumber, providerID, model string) ([]domain.VerificationResult, error)
}

// ErrorSink records AI-call failures independently of the result stream.
type ErrorSink interface {
	Record(ctx context.Context, entry domain.ErrorLogEntry) error
	List(ctx context.Context, lawID string, articleNumbers []string) ([]domain.ErrorLogEntry, error)
}

// Notifier pushes operator-facing digests (Telegram or similar).
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when unattended comparison runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
