// Package workflow drives the operator-facing reconciliation procedure as a
// finite state machine over ordered steps.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ArticlesReconciler/internal/compare"
	"ArticlesReconciler/internal/domain"
	"ArticlesReconciler/internal/ports"
)

// State is one step of the reconciliation procedure.
type State uint8

const (
	StateIdle State = iota
	StateSummary
	StateSelecting
	StateUpdated
	StateReviewingQuestions
	StateReviewingAI
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSummary:
		return "summary"
	case StateSelecting:
		return "selecting"
	case StateUpdated:
		return "updated"
	case StateReviewingQuestions:
		return "reviewing_questions"
	case StateReviewingAI:
		return "reviewing_ai"
	}
	return "unknown"
}

// ErrBusy rejects re-entrant triggering while an external call is in flight.
var ErrBusy = errors.New("operation already in flight")

var errWrongState = errors.New("operation not allowed in current state")

// RawContent pairs the canonical and stored text of one article for
// side-by-side inspection.
type RawContent struct {
	BOE domain.CanonicalArticle
	DB  domain.StoredArticle
}

// Machine holds all per-session reconciliation state for one law. It is
// driven by a single logical thread of operator actions; external calls may
// suspend it but must not be re-triggered while in flight.
type Machine struct {
	logger    *slog.Logger
	source    ports.CanonicalSource
	articles  ports.ArticleRepository
	questions ports.QuestionRepository
	opts      compare.Options

	law   domain.Law
	state State
	trail []State
	busy  bool

	report            compare.Report
	canonicalByNumber map[string]domain.CanonicalArticle
	storedByNumber    map[string]domain.StoredArticle
	selection         *Selection
	outcome           domain.UpdateOutcome
	loadedQuestions   map[string][]domain.Question
	selectedQuestions map[string]struct{}
}

// Deps wires the external collaborators of a reconciliation session.
type Deps struct {
	Source    ports.CanonicalSource
	Articles  ports.ArticleRepository
	Questions ports.QuestionRepository
	Logger    *slog.Logger
	Compare   compare.Options
}

// NewMachine starts a session at Idle for the given law.
func NewMachine(law domain.Law, deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger:    logger,
		source:    deps.Source,
		articles:  deps.Articles,
		questions: deps.Questions,
		opts:      deps.Compare,
		law:       law,
		state:     StateIdle,
	}
}

// State returns the current step.
func (m *Machine) State() State { return m.state }

// Report exposes the last comparison run.
func (m *Machine) Report() compare.Report { return m.report }

// Selection exposes the article selection; nil before the Selecting step.
func (m *Machine) Selection() *Selection { return m.selection }

// Outcome exposes the last update batch result.
func (m *Machine) Outcome() domain.UpdateOutcome { return m.outcome }

// RunComparison fetches both sources and classifies every article. Allowed
// from Idle; on fetch failure the machine stays at Idle and the error wraps
// domain.ErrSourceUnavailable.
func (m *Machine) RunComparison(ctx context.Context) error {
	if err := m.begin(StateIdle); err != nil {
		return err
	}
	defer m.end()

	canonical, err := m.source.FetchArticles(ctx, m.law.BOEID)
	if err != nil {
		return fmt.Errorf("%w: fetch canonical articles: %v", domain.ErrSourceUnavailable, err)
	}

	stored, err := m.articles.ListArticles(ctx, m.law.ID)
	if err != nil {
		return fmt.Errorf("%w: fetch stored articles: %v", domain.ErrSourceUnavailable, err)
	}

	m.report = compare.Compare(canonical, stored, m.opts)
	m.canonicalByNumber = make(map[string]domain.CanonicalArticle, len(canonical))
	for _, art := range canonical {
		m.canonicalByNumber[art.Number] = art
	}
	m.storedByNumber = make(map[string]domain.StoredArticle, len(stored))
	for _, art := range stored {
		m.storedByNumber[art.Number] = art
	}

	m.logger.Info("comparison complete",
		"law", m.law.ID,
		"articles", len(m.report.Results),
		"discrepancies", m.report.Counts.Discrepancies())

	m.advance(StateSummary)
	return nil
}

// BeginSelection moves into the selection step. With zero discrepancies the
// session is terminal at Summary and domain.ErrNothingToUpdate is returned.
func (m *Machine) BeginSelection() error {
	if m.state != StateSummary {
		return m.stateError(StateSummary)
	}
	if m.report.Counts.Discrepancies() == 0 {
		return domain.ErrNothingToUpdate
	}

	if m.selection == nil {
		m.selection = newSelection(m.report.Results)
	}
	m.advance(StateSelecting)
	return nil
}

// ApplyUpdates pushes the selected articles to storage. Rejected before any
// external call when the selection is empty. Item failures are collected in
// the outcome; the batch itself never aborts.
func (m *Machine) ApplyUpdates(ctx context.Context) error {
	if err := m.begin(StateSelecting); err != nil {
		return err
	}
	defer m.end()

	if m.selection == nil || m.selection.Count() == 0 {
		return fmt.Errorf("no articles selected: %w", domain.ErrValidationFailed)
	}

	selected := m.selection.Selected()
	updates := make([]domain.ArticleUpdate, 0, len(selected))
	for _, r := range selected {
		updates = append(updates, domain.ArticleUpdate{
			ArticleNumber:    r.ArticleNumber,
			CanonicalTitle:   r.CanonicalTitle,
			CanonicalContent: m.canonicalByNumber[r.ArticleNumber].Content,
			StoredTitle:      r.StoredTitle,
			StoredID:         r.StoredID,
			Kind:             r.Kind,
		})
	}

	outcome, err := m.articles.UpdateArticles(ctx, m.law.ID, updates)
	if err != nil {
		return fmt.Errorf("update articles: %w", err)
	}

	m.outcome = outcome
	m.logger.Info("update batch applied",
		"law", m.law.ID,
		"updated", len(outcome.Updated),
		"failed", len(outcome.Errors))

	m.advance(StateUpdated)
	return nil
}

// LoadQuestions fetches the questions linked to every successfully updated
// article.
func (m *Machine) LoadQuestions(ctx context.Context) error {
	if err := m.begin(StateUpdated); err != nil {
		return err
	}
	defer m.end()

	loaded := make(map[string][]domain.Question, len(m.outcome.Updated))
	for _, number := range m.outcome.Updated {
		questions, err := m.questions.QuestionsForArticle(ctx, m.law.ID, number)
		if err != nil {
			return fmt.Errorf("load questions for article %s: %w", number, err)
		}
		loaded[number] = questions
	}

	m.loadedQuestions = loaded
	m.selectedQuestions = make(map[string]struct{})
	m.advance(StateReviewingQuestions)
	return nil
}

// Questions returns the loaded questions for one updated article.
func (m *Machine) Questions(articleNumber string) []domain.Question {
	return m.loadedQuestions[articleNumber]
}

// ToggleQuestion flips membership of one question in the review subset.
func (m *Machine) ToggleQuestion(questionID string) error {
	if m.state != StateReviewingQuestions {
		return m.stateError(StateReviewingQuestions)
	}
	if !m.questionExists(questionID) {
		return fmt.Errorf("question %s: not loaded", questionID)
	}
	if _, on := m.selectedQuestions[questionID]; on {
		delete(m.selectedQuestions, questionID)
	} else {
		m.selectedQuestions[questionID] = struct{}{}
	}
	return nil
}

// BeginAIReview finalizes the question subset and moves to the AI step. The
// returned map (article number to question ids) is what the batch
// orchestrator should verify.
func (m *Machine) BeginAIReview() (map[string][]string, error) {
	if m.state != StateReviewingQuestions {
		return nil, m.stateError(StateReviewingQuestions)
	}
	if len(m.selectedQuestions) == 0 {
		return nil, fmt.Errorf("no questions selected: %w", domain.ErrValidationFailed)
	}

	subset := make(map[string][]string)
	for number, questions := range m.loadedQuestions {
		for _, q := range questions {
			if _, ok := m.selectedQuestions[q.ID]; ok {
				subset[number] = append(subset[number], q.ID)
			}
		}
	}

	m.advance(StateReviewingAI)
	return subset, nil
}

// ArticleRawContent fetches the canonical text live and pairs it with the
// stored copy from the current run, for side-by-side display.
func (m *Machine) ArticleRawContent(ctx context.Context, articleNumber string) (RawContent, error) {
	if m.busy {
		return RawContent{}, ErrBusy
	}
	m.busy = true
	defer m.end()

	canonical, err := m.source.FetchArticleContent(ctx, m.law.BOEID, articleNumber)
	if err != nil {
		return RawContent{}, fmt.Errorf("%w: fetch article %s: %v", domain.ErrSourceUnavailable, articleNumber, err)
	}

	return RawContent{BOE: canonical, DB: m.storedByNumber[articleNumber]}, nil
}

// Back returns to the immediately preceding step. Data already fetched is
// kept so the operator can move forward again without refetching.
func (m *Machine) Back() error {
	if m.busy {
		return ErrBusy
	}
	if len(m.trail) == 0 {
		return fmt.Errorf("already at %s: %w", m.state, errWrongState)
	}
	m.state = m.trail[len(m.trail)-1]
	m.trail = m.trail[:len(m.trail)-1]
	return nil
}

// Restart aborts the session from any state and clears all in-memory
// selection and result state.
func (m *Machine) Restart() {
	m.state = StateIdle
	m.trail = nil
	m.busy = false
	m.report = compare.Report{}
	m.canonicalByNumber = nil
	m.storedByNumber = nil
	m.selection = nil
	m.outcome = domain.UpdateOutcome{}
	m.loadedQuestions = nil
	m.selectedQuestions = nil
}

func (m *Machine) begin(required State) error {
	if m.busy {
		return ErrBusy
	}
	if m.state != required {
		return m.stateError(required)
	}
	m.busy = true
	return nil
}

func (m *Machine) end() { m.busy = false }

func (m *Machine) advance(next State) {
	m.trail = append(m.trail, m.state)
	m.state = next
}

func (m *Machine) stateError(required State) error {
	return fmt.Errorf("%w: at %s, requires %s", errWrongState, m.state, required)
}

func (m *Machine) questionExists(questionID string) bool {
	for _, questions := range m.loadedQuestions {
		for _, q := range questions {
			if q.ID == questionID {
				return true
			}
		}
	}
	return false
}
