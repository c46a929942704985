// Package storage persists stored articles, questions, verification verdicts,
// the update audit log, summary caches, and the AI error log in Postgres.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// undefinedColumn is the Postgres error code raised when a referenced column
// does not exist; it signals a pending schema migration, not a transient bug.
const undefinedColumn = "42703"

// Postgres is the shared base for all repositories in this package.
type Postgres struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewPostgres wires a sql.DB handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates every table this package uses if absent.
func (p *Postgres) EnsureSchema() error {
	if p.db == nil {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS laws (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		boe_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		law_id TEXT NOT NULL REFERENCES laws(id),
		number TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		UNIQUE (law_id, number)
	);

	CREATE TABLE IF NOT EXISTS update_log (
		id BIGSERIAL PRIMARY KEY,
		law_id TEXT NOT NULL,
		article_number TEXT NOT NULL,
		old_title TEXT NOT NULL,
		new_title TEXT NOT NULL,
		change_type TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		law_id TEXT NOT NULL,
		article_number TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT[] NOT NULL,
		correct_option INT NOT NULL,
		explanation TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS verification_results (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL UNIQUE,
		law_id TEXT NOT NULL,
		article_number TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		confidence INT NOT NULL DEFAULT 0,
		explanation TEXT NOT NULL DEFAULT '',
		article_quote TEXT NOT NULL DEFAULT '',
		suggested_fix TEXT NOT NULL DEFAULT '',
		correct_option_should_be TEXT NOT NULL DEFAULT '',
		new_explanation TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		verified_at TIMESTAMPTZ NOT NULL,
		fix_applied BOOLEAN NOT NULL DEFAULT FALSE,
		discarded BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS verification_summaries (
		law_id TEXT NOT NULL,
		article_number TEXT NOT NULL,
		total INT NOT NULL DEFAULT 0,
		verified INT NOT NULL DEFAULT 0,
		ok_count INT NOT NULL DEFAULT 0,
		fixed INT NOT NULL DEFAULT 0,
		last_verified_at TIMESTAMPTZ,
		PRIMARY KEY (law_id, article_number)
	);

	CREATE TABLE IF NOT EXISTS ai_error_logs (
		id TEXT PRIMARY KEY,
		law_id TEXT NOT NULL,
		article_number TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		message TEXT NOT NULL,
		raw_payload TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	);
	`

	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// isUndefinedColumn detects the missing-migration case.
func isUndefinedColumn(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == undefinedColumn
}
