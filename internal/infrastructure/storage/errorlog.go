package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// ErrorLogRepo implements ports.ErrorSink on Postgres.
type ErrorLogRepo struct {
	*Postgres
}

var _ ports.ErrorSink = (*ErrorLogRepo)(nil)

// NewErrorLogRepo wraps a shared Postgres base.
func NewErrorLogRepo(p *Postgres) *ErrorLogRepo {
	return &ErrorLogRepo{Postgres: p}
}

// Record appends one AI failure entry.
func (r *ErrorLogRepo) Record(ctx context.Context, entry domain.ErrorLogEntry) error {
	query, args, err := r.sb.
		Insert("ai_error_logs").
		Columns("id", "law_id", "article_number", "provider", "model", "message", "raw_payload", "occurred_at").
		Values(entry.ID, entry.LawID, entry.ArticleNumber, entry.Provider, entry.Model,
			entry.Message, entry.RawPayload, entry.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build error log insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

// List returns failures for a law, newest first, optionally filtered by
// article numbers.
func (r *ErrorLogRepo) List(ctx context.Context, lawID string, articleNumbers []string) ([]domain.ErrorLogEntry, error) {
	builder := r.sb.
		Select("id", "law_id", "article_number", "provider", "model", "message", "raw_payload", "occurred_at").
		From("ai_error_logs").
		Where("law_id = ?", lawID).
		OrderBy("occurred_at DESC")
	if len(articleNumbers) > 0 {
		builder = builder.Where(sq.Expr("article_number = ANY(?)", pq.Array(articleNumbers)))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build error log query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ErrorLogEntry
	for rows.Next() {
		var e domain.ErrorLogEntry
		if err := rows.Scan(&e.ID, &e.LawID, &e.ArticleNumber, &e.Provider, &e.Model,
			&e.Message, &e.RawPayload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan error log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}
