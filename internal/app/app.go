package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"ArticlesReconciler/internal/config"
	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/infrastructure/boe"
	"ArticlesReconciler/internal/infrastructure/llm"
	"ArticlesReconciler/internal/infrastructure/scheduler"
	"ArticlesReconciler/internal/infrastructure/storage"
	"ArticlesReconciler/internal/infrastructure/telegram"
	"ArticlesReconciler/internal/logging"
	"ArticlesReconciler/internal/ports"
	"ArticlesReconciler/internal/triage"
	"ArticlesReconciler/internal/usecase"
	"ArticlesReconciler/internal/verify"
	"ArticlesReconciler/internal/workflow"
)

// Application wires configuration to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB

	source    ports.CanonicalSource
	articles  ports.ArticleRepository
	questions ports.QuestionRepository
	errorSink ports.ErrorSink
	catalog   *llm.Catalog

	orchestrator *verify.Orchestrator
	triage       *triage.Manager
	scan         *usecase.Scan
	scheduler    *usecase.Scheduler
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	base := storage.NewPostgres(db)
	if err := base.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	articles := storage.NewArticleRepo(base)
	questions := storage.NewQuestionRepo(base)
	errorSink := storage.NewErrorLogRepo(base)

	source := boe.NewSource(cfg.BOE.BaseURL, &http.Client{Timeout: cfg.BOE.Timeout()})

	catalog := llm.NewCatalog(cfg.Providers)
	verifier := llm.NewVerifier(catalog, questions, articles, source, llm.VerifierConfig{
		BatchSize:    cfg.Verification.BatchSize,
		SystemPrompt: cfg.Verification.SystemPrompt,
	}, baseLogger.With("component", "verifier"))

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	scan := usecase.NewScan(lawsFromConfig(cfg.Laws), usecase.ScanDeps{
		Source:   source,
		Articles: articles,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "scan"),
	})

	cronDriver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		source:    source,
		articles:  articles,
		questions: questions,
		errorSink: errorSink,
		catalog:   catalog,
		orchestrator: verify.New(verifier, errorSink,
			baseLogger.With("component", "orchestrator")),
		triage:    triage.NewManager(questions, baseLogger.With("component", "triage")),
		scan:      scan,
		scheduler: usecase.NewScheduler(cronDriver, scan),
	}, nil
}

// Run performs a single scan cycle over all configured laws.
func (a *Application) Run(ctx context.Context) error {
	if a.scan == nil {
		return nil
	}
	return a.scan.Run(ctx, nowIn(a.cfg))
}

// RunScheduled starts the cron loop and blocks until the context ends.
func (a *Application) RunScheduled(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}

// NewSession opens an interactive reconciliation session for one law.
func (a *Application) NewSession(ctx context.Context, lawID string) (*workflow.Machine, error) {
	law, err := a.articles.FetchLaw(ctx, lawID)
	if err != nil {
		return nil, fmt.Errorf("fetch law %s: %w", lawID, err)
	}
	return workflow.NewMachine(law, workflow.Deps{
		Source:    a.source,
		Articles:  a.articles,
		Questions: a.questions,
		Logger:    a.logger.With("component", "workflow"),
	}), nil
}

// Orchestrator exposes the batch verification runner.
func (a *Application) Orchestrator() *verify.Orchestrator { return a.orchestrator }

// Triage exposes the fix/discard manager.
func (a *Application) Triage() *triage.Manager { return a.triage }

// ErrorLogs lists recorded AI-call failures, optionally narrowed to articles.
func (a *Application) ErrorLogs(ctx context.Context, lawID string, articleNumbers []string) ([]domain.ErrorLogEntry, error) {
	return a.errorSink.List(ctx, lawID, articleNumbers)
}

// Providers lists the configured AI backends with their observed status.
func (a *Application) Providers() []domain.Provider { return a.catalog.List() }

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func lawsFromConfig(cfgs []config.LawConfig) []domain.Law {
	laws := make([]domain.Law, 0, len(cfgs))
	for _, c := range cfgs {
		laws = append(laws, domain.Law{ID: c.ID, Name: c.Name, BOEID: c.BOEID})
	}
	return laws
}

func nowIn(cfg config.Config) time.Time {
	return time.Now().In(cfg.Scheduler.Location())
}
