package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ArticlesReconciler/internal/compare"
	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// ScanDeps wires the collaborators of the unattended comparison run.
type ScanDeps struct {
	Source   ports.CanonicalSource
	Articles ports.ArticleRepository
	Notifier ports.Notifier
	Logger   *slog.Logger
	Compare  compare.Options
}

// Scan runs periodic comparisons of every tracked law and alerts the
// operator when discrepancies appear. It never updates anything — the guarded
// update procedure stays with the interactive workflow.
type Scan struct {
	source   ports.CanonicalSource
	articles ports.ArticleRepository
	notifier ports.Notifier
	logger   *slog.Logger
	opts     compare.Options
	laws     []domain.Law
}

// NewScan constructs the scan use case over the configured laws.
func NewScan(laws []domain.Law, deps ScanDeps) *Scan {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scan{
		source:   deps.Source,
		articles: deps.Articles,
		notifier: deps.Notifier,
		logger:   logger,
		opts:     deps.Compare,
		laws:     laws,
	}
}

// Run compares every law once. A single law's failure is logged and the scan
// moves on; the returned error is the last one seen.
func (s *Scan) Run(ctx context.Context, at time.Time) error {
	if s.source == nil || s.articles == nil {
		return nil
	}

	var lastErr error
	for _, law := range s.laws {
		if err := s.scanLaw(ctx, law); err != nil {
			s.logger.Error("law scan failed", "law", law.ID, "error", err)
			lastErr = err
		}
	}

	s.logger.Info("scan cycle done", "laws", len(s.laws), "at", at.Format(time.RFC3339))
	return lastErr
}

func (s *Scan) scanLaw(ctx context.Context, law domain.Law) error {
	canonical, err := s.source.FetchArticles(ctx, law.BOEID)
	if err != nil {
		return fmt.Errorf("%w: fetch canonical: %v", domain.ErrSourceUnavailable, err)
	}

	stored, err := s.articles.ListArticles(ctx, law.ID)
	if err != nil {
		return fmt.Errorf("%w: fetch stored: %v", domain.ErrSourceUnavailable, err)
	}

	report := compare.Compare(canonical, stored, s.opts)
	s.logger.Info("law compared",
		"law", law.ID,
		"articles", len(report.Results),
		"matching", report.Counts.Matching,
		"title_mismatch", report.Counts.TitleMismatch,
		"content_mismatch", report.Counts.ContentMismatch,
		"extra_in_db", report.Counts.ExtraInDB,
		"missing_in_db", report.Counts.MissingInDB)

	if report.Counts.Discrepancies() == 0 || s.notifier == nil {
		return nil
	}

	if err := s.notifier.PublishDigest(ctx, buildDigest(law, report)); err != nil {
		return fmt.Errorf("publish digest for law %s: %w", law.ID, err)
	}
	return nil
}

func buildDigest(law domain.Law, report compare.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%s): %d discrepancies\n", law.Name, law.BOEID, report.Counts.Discrepancies())
	fmt.Fprintf(&b, "title: %d, content: %d, extra: %d, missing: %d\n\n",
		report.Counts.TitleMismatch,
		report.Counts.ContentMismatch,
		report.Counts.ExtraInDB,
		report.Counts.MissingInDB)

	for _, r := range report.Discrepancies() {
		switch r.Kind {
		case domain.KindTitleMismatch, domain.KindContentMismatch:
			fmt.Fprintf(&b, "- art. %s: %s (title %d%%, content %d%%)\n",
				r.ArticleNumber, r.Kind, r.TitleSimilarity, r.ContentSimilarity)
		default:
			fmt.Fprintf(&b, "- art. %s: %s\n", r.ArticleNumber, r.Kind)
		}
	}

	return b.String()
}
