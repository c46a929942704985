package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// QuestionRepo implements ports.QuestionRepository on Postgres.
type QuestionRepo struct {
	*Postgres
}

var _ ports.QuestionRepository = (*QuestionRepo)(nil)

// NewQuestionRepo wraps a shared Postgres base.
func NewQuestionRepo(p *Postgres) *QuestionRepo {
	return &QuestionRepo{Postgres: p}
}

// QuestionsForArticle returns the quiz questions linked to one article.
func (r *QuestionRepo) QuestionsForArticle(ctx context.Context, lawID, articleNumber string) ([]domain.Question, error) {
	query, args, err := r.sb.
		Select("id", "article_number", "text", "options", "correct_option", "explanation").
		From("questions").
		Where("law_id = ? AND article_number = ?", lawID, articleNumber).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build questions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			options []string
		)
		if err := rows.Scan(&q.ID, &q.ArticleNumber, &q.Text, pq.Array(&options), &q.CorrectOption, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		copy(q.Options[:], options)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return questions, nil
}

// SaveResults upserts one verdict per question; a newer run supersedes the
// previous verdict and resets its triage flags.
func (r *QuestionRepo) SaveResults(ctx context.Context, lawID string, results []domain.VerificationResult) error {
	for _, res := range results {
		query, args, err := r.sb.
			Insert("verification_results").
			Columns("id", "question_id", "law_id", "article_number", "is_correct", "confidence",
				"explanation", "article_quote", "suggested_fix", "correct_option_should_be",
				"new_explanation", "provider", "model", "verified_at", "fix_applied", "discarded").
			Values(res.ID, res.QuestionID, lawID, res.ArticleNumber, res.IsCorrect, res.Confidence,
				res.Explanation, res.ArticleQuote, res.SuggestedFix, res.CorrectOptionShouldBe,
				res.NewExplanation, res.Provider, res.Model, res.VerifiedAt, false, false).
			Suffix(`ON CONFLICT (question_id) DO UPDATE SET
				id = EXCLUDED.id,
				is_correct = EXCLUDED.is_correct,
				confidence = EXCLUDED.confidence,
				explanation = EXCLUDED.explanation,
				article_quote = EXCLUDED.article_quote,
				suggested_fix = EXCLUDED.suggested_fix,
				correct_option_should_be = EXCLUDED.correct_option_should_be,
				new_explanation = EXCLUDED.new_explanation,
				provider = EXCLUDED.provider,
				model = EXCLUDED.model,
				verified_at = EXCLUDED.verified_at,
				fix_applied = FALSE,
				discarded = FALSE`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build result upsert: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert result for question %s: %w", res.QuestionID, err)
		}
	}
	return nil
}

// ResultsForArticle returns the current verdict of every question of one article.
func (r *QuestionRepo) ResultsForArticle(ctx context.Context, lawID, articleNumber string) ([]domain.VerificationResult, error) {
	query, args, err := r.sb.
		Select("id", "question_id", "article_number", "is_correct", "confidence", "explanation",
			"article_quote", "suggested_fix", "correct_option_should_be", "new_explanation",
			"provider", "model", "verified_at", "fix_applied", "discarded").
		From("verification_results").
		Where("law_id = ? AND article_number = ?", lawID, articleNumber).
		OrderBy("question_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build results query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.VerificationResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return results, nil
}

// ApplyFix persists an accepted correction: the question is repaired and the
// verdict flags move to fixed through the same transaction. A nil new option
// updates only the explanation.
func (r *QuestionRepo) ApplyFix(ctx context.Context, fix domain.QuestionFix) (domain.VerificationResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	builder := r.sb.Update("questions").Where("id = ?", fix.QuestionID)
	if fix.NewCorrectOption != nil {
		builder = builder.Set("correct_option", *fix.NewCorrectOption)
	}
	builder = builder.Set("explanation", fix.NewExplanation)

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("build question update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("update question %s: %w", fix.QuestionID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.VerificationResult{}, fmt.Errorf("question %s not found", fix.QuestionID)
	}

	query, args, err = r.sb.
		Update("verification_results").
		Set("fix_applied", true).
		Set("discarded", false).
		Where("id = ? AND question_id = ?", fix.ResultID, fix.QuestionID).
		ToSql()
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("build result update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.VerificationResult{}, fmt.Errorf("mark result fixed: %w", err)
	}

	query, args, err = r.sb.
		Select("id", "question_id", "article_number", "is_correct", "confidence", "explanation",
			"article_quote", "suggested_fix", "correct_option_should_be", "new_explanation",
			"provider", "model", "verified_at", "fix_applied", "discarded").
		From("verification_results").
		Where("id = ?", fix.ResultID).
		ToSql()
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("build result query: %w", err)
	}
	updated, err := scanResult(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.VerificationResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.VerificationResult{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// SetDiscarded toggles the discard flag; discarding clears any applied fix.
// Writes nothing when the flag already holds the requested value, so repeated
// calls cannot drift the summaries.
func (r *QuestionRepo) SetDiscarded(ctx context.Context, questionID string, discarded bool) (bool, error) {
	query, args, err := r.sb.
		Update("verification_results").
		Set("discarded", discarded).
		Set("fix_applied", sq.Expr("CASE WHEN ? THEN FALSE ELSE fix_applied END", discarded)).
		Where("question_id = ? AND discarded <> ?", questionID, discarded).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build discard update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUndefinedColumn(err) {
			return false, fmt.Errorf("discard flag: %w", domain.ErrSchemaMissing)
		}
		return false, fmt.Errorf("set discard on question %s: %w", questionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecomputeSummary derives the per-article counters from stored rows and
// upserts the cache. Deriving instead of incrementing keeps problems from
// ever going negative.
func (r *QuestionRepo) RecomputeSummary(ctx context.Context, lawID, articleNumber string) (domain.VerificationSummary, error) {
	summary := domain.VerificationSummary{ArticleNumber: articleNumber}

	query, args, err := r.sb.
		Select("COUNT(*)").
		From("questions").
		Where("law_id = ? AND article_number = ?", lawID, articleNumber).
		ToSql()
	if err != nil {
		return summary, fmt.Errorf("build total query: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&summary.Total); err != nil {
		return summary, fmt.Errorf("count questions: %w", err)
	}

	query, args, err = r.sb.
		Select("COUNT(*)",
			"COUNT(*) FILTER (WHERE is_correct)",
			"COUNT(*) FILTER (WHERE fix_applied)",
			"COALESCE(MAX(verified_at), 'epoch'::timestamptz)").
		From("verification_results").
		Where("law_id = ? AND article_number = ?", lawID, articleNumber).
		ToSql()
	if err != nil {
		return summary, fmt.Errorf("build counters query: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&summary.Verified, &summary.OK, &summary.Fixed, &summary.LastVerifiedAt); err != nil {
		return summary, fmt.Errorf("count verdicts: %w", err)
	}

	query, args, err = r.sb.
		Insert("verification_summaries").
		Columns("law_id", "article_number", "total", "verified", "ok_count", "fixed", "last_verified_at").
		Values(lawID, articleNumber, summary.Total, summary.Verified, summary.OK, summary.Fixed, summary.LastVerifiedAt).
		Suffix(`ON CONFLICT (law_id, article_number) DO UPDATE SET
			total = EXCLUDED.total,
			verified = EXCLUDED.verified,
			ok_count = EXCLUDED.ok_count,
			fixed = EXCLUDED.fixed,
			last_verified_at = EXCLUDED.last_verified_at`).
		ToSql()
	if err != nil {
		return summary, fmt.Errorf("build summary upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return summary, fmt.Errorf("upsert summary: %w", err)
	}

	return summary, nil
}

// Summaries loads the cached counters for the requested articles.
func (r *QuestionRepo) Summaries(ctx context.Context, lawID string, articleNumbers []string) (map[string]domain.VerificationSummary, error) {
	query, args, err := r.sb.
		Select("article_number", "total", "verified", "ok_count", "fixed", "last_verified_at").
		From("verification_summaries").
		Where("law_id = ?", lawID).
		Where(sq.Expr("article_number = ANY(?)", pq.Array(articleNumbers))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build summaries query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	summaries := make(map[string]domain.VerificationSummary, len(articleNumbers))
	for rows.Next() {
		var s domain.VerificationSummary
		if err := rows.Scan(&s.ArticleNumber, &s.Total, &s.Verified, &s.OK, &s.Fixed, &s.LastVerifiedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries[s.ArticleNumber] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return summaries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (domain.VerificationResult, error) {
	var res domain.VerificationResult
	err := row.Scan(&res.ID, &res.QuestionID, &res.ArticleNumber, &res.IsCorrect, &res.Confidence,
		&res.Explanation, &res.ArticleQuote, &res.SuggestedFix, &res.CorrectOptionShouldBe,
		&res.NewExplanation, &res.Provider, &res.Model, &res.VerifiedAt, &res.FixApplied, &res.Discarded)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("scan result: %w", err)
	}
	return res, nil
}
