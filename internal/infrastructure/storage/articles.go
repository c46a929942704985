package storage

import (
	"context"
	"fmt"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// ArticleRepo implements ports.ArticleRepository on Postgres.
type ArticleRepo struct {
	*Postgres
}

var _ ports.ArticleRepository = (*ArticleRepo)(nil)

// NewArticleRepo wraps a shared Postgres base.
func NewArticleRepo(p *Postgres) *ArticleRepo {
	return &ArticleRepo{Postgres: p}
}

// FetchLaw loads one law's metadata.
func (r *ArticleRepo) FetchLaw(ctx context.Context, lawID string) (domain.Law, error) {
	query, args, err := r.sb.
		Select("id", "name", "boe_id").
		From("laws").
		Where("id = ?", lawID).
		ToSql()
	if err != nil {
		return domain.Law{}, fmt.Errorf("build law query: %w", err)
	}

	var law domain.Law
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&law.ID, &law.Name, &law.BOEID); err != nil {
		return domain.Law{}, fmt.Errorf("fetch law %s: %w", lawID, err)
	}
	return law, nil
}

// ListArticles returns every stored article of a law.
func (r *ArticleRepo) ListArticles(ctx context.Context, lawID string) ([]domain.StoredArticle, error) {
	query, args, err := r.sb.
		Select("id", "number", "title", "content", "law_id").
		From("articles").
		Where("law_id = ?", lawID).
		OrderBy("number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build articles query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.StoredArticle
	for rows.Next() {
		var art domain.StoredArticle
		if err := rows.Scan(&art.ID, &art.Number, &art.Title, &art.Content, &art.LawID); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, art)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return articles, nil
}

// UpdateArticles applies each item in its own transaction so one failing
// article never rolls back the rest. Every applied item appends one
// update_log row inside the same transaction.
func (r *ArticleRepo) UpdateArticles(ctx context.Context, lawID string, updates []domain.ArticleUpdate) (domain.UpdateOutcome, error) {
	if len(updates) == 0 {
		return domain.UpdateOutcome{}, fmt.Errorf("empty update batch: %w", domain.ErrValidationFailed)
	}

	var outcome domain.UpdateOutcome
	for _, update := range updates {
		if err := r.applyOne(ctx, lawID, update); err != nil {
			outcome.Errors = append(outcome.Errors, domain.UpdateItemError{
				ArticleNumber: update.ArticleNumber,
				Message:       err.Error(),
			})
			continue
		}
		outcome.Updated = append(outcome.Updated, update.ArticleNumber)
	}

	return outcome, nil
}

func (r *ArticleRepo) applyOne(ctx context.Context, lawID string, update domain.ArticleUpdate) error {
	if update.StoredID == "" {
		return fmt.Errorf("article %s has no stored id", update.ArticleNumber)
	}

	changeType := domain.ChangeFullUpdate
	if update.Kind == domain.KindTitleMismatch {
		changeType = domain.ChangeTitleOnly
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	builder := r.sb.
		Update("articles").
		Set("title", update.CanonicalTitle).
		Where("id = ?", update.StoredID)
	if changeType == domain.ChangeFullUpdate {
		builder = builder.Set("content", update.CanonicalContent)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("stored article %s not found", update.StoredID)
	}

	query, args, err = r.sb.
		Insert("update_log").
		Columns("law_id", "article_number", "old_title", "new_title", "change_type").
		Values(lawID, update.ArticleNumber, update.StoredTitle, update.CanonicalTitle, changeType.String()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build log insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append update log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateHistory returns the append-only audit log, newest first.
func (r *ArticleRepo) UpdateHistory(ctx context.Context, lawID string) ([]domain.UpdateLogEntry, error) {
	query, args, err := r.sb.
		Select("article_number", "old_title", "new_title", "change_type", "applied_at").
		From("update_log").
		Where("law_id = ?", lawID).
		OrderBy("applied_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.UpdateLogEntry
	for rows.Next() {
		var (
			entry      domain.UpdateLogEntry
			changeType string
		)
		if err := rows.Scan(&entry.ArticleNumber, &entry.OldTitle, &entry.NewTitle, &changeType, &entry.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if changeType == domain.ChangeTitleOnly.String() {
			entry.ChangeType = domain.ChangeTitleOnly
		} else {
			entry.ChangeType = domain.ChangeFullUpdate
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}
