package domain

import "time"

// Question is a quiz question linked to one article. Owned by the quiz
// subsystem; this core only reads it and requests corrections.
type Question struct {
	ID            string
	ArticleNumber string
	Text          string
	Options       [4]string
	CorrectOption int
	Explanation   string
}

// OptionLetter maps an option index to its display letter (A-D).
func OptionLetter(index int) string {
	if index < 0 || index > 3 {
		return ""
	}
	return string(rune('A' + index))
}

// VerificationResult is one AI verdict for one question. Persists until a
// newer run supersedes it or a triage action mutates its flags.
type VerificationResult struct {
	ID                    string
	QuestionID            string
	ArticleNumber         string
	IsCorrect             bool
	Confidence            int
	Explanation           string
	ArticleQuote          string
	SuggestedFix          string
	CorrectOptionShouldBe string
	NewExplanation        string
	Provider              string
	Model                 string
	VerifiedAt            time.Time
	FixApplied            bool
	Discarded             bool
}

// TriageState is the operator decision attached to a failed verification.
type TriageState uint8

const (
	TriagePending TriageState = iota
	TriageFixed
	TriageDiscarded
)

func (s TriageState) String() string {
	switch s {
	case TriageFixed:
		return "fixed"
	case TriageDiscarded:
		return "discarded"
	}
	return "pending"
}

// Triage derives the state from the persisted flags. The second return is
// false for questions verified as correct, which carry no triage state.
func (r VerificationResult) Triage() (TriageState, bool) {
	if r.IsCorrect {
		return TriagePending, false
	}
	switch {
	case r.FixApplied:
		return TriageFixed, true
	case r.Discarded:
		return TriageDiscarded, true
	}
	return TriagePending, true
}

// Resolve is the single transition point for the fixApplied/discarded pair.
// Going through it keeps the two flags mutually exclusive.
func (r *VerificationResult) Resolve(state TriageState) {
	switch state {
	case TriageFixed:
		r.FixApplied = true
		r.Discarded = false
	case TriageDiscarded:
		r.Discarded = true
		r.FixApplied = false
	default:
		r.FixApplied = false
		r.Discarded = false
	}
}

// LikelyFalsePositive reports the advisory heuristic: the AI marked the
// question incorrect while suggesting the answer it already has.
func LikelyFalsePositive(q Question, r VerificationResult) bool {
	return !r.IsCorrect &&
		r.CorrectOptionShouldBe != "" &&
		r.CorrectOptionShouldBe == OptionLetter(q.CorrectOption)
}

// QuestionFix describes an accepted correction. A nil NewCorrectOption means
// only the explanation changes (the AI agreed with the current answer).
type QuestionFix struct {
	QuestionID       string
	NewCorrectOption *int
	NewExplanation   string
	ResultID         string
}

// VerificationSummary caches per-article verdict counters.
type VerificationSummary struct {
	ArticleNumber  string
	Total          int
	Verified       int
	OK             int
	Fixed          int
	LastVerifiedAt time.Time
}

// Problems counts failed verdicts still awaiting triage. Derived so it can
// never drift negative regardless of the fix/discard sequence applied.
func (s VerificationSummary) Problems() int {
	p := s.Verified - s.OK - s.Fixed
	if p < 0 {
		return 0
	}
	return p
}

// BatchPlan is a pre-run estimate of verification volume, used only for
// progress display; producing it must not verify anything.
type BatchPlan struct {
	BatchSize      int
	PerArticle     []ArticlePlan
	TotalQuestions int
	TotalBatches   int
}

// ArticlePlan estimates one article's share of a batch run.
type ArticlePlan struct {
	ArticleNumber string
	QuestionCount int
	Batches       int
}

// BatchProgress is ephemeral per-run state, discarded when the run ends.
type BatchProgress struct {
	ArticleIndex   int
	ArticleCount   int
	QuestionsDone  int
	QuestionsTotal int
	CurrentArticle string
	CurrentBatch   string
}

// ErrorLogEntry records one AI-call failure for later inspection,
// independent of the main result stream.
type ErrorLogEntry struct {
	ID            string
	LawID         string
	ArticleNumber string
	Provider      string
	Model         string
	Message       string
	RawPayload    string
	OccurredAt    time.Time
}

// ProviderStatus tracks whether an AI backend has been seen working.
type ProviderStatus uint8

const (
	ProviderUntested ProviderStatus = iota
	ProviderWorking
	ProviderFailed
)

func (s ProviderStatus) String() string {
	switch s {
	case ProviderWorking:
		return "working"
	case ProviderFailed:
		return "failed"
	}
	return "untested"
}

// Provider describes one configured AI backend. The set of providers is
// configuration data, not core logic.
type Provider struct {
	ID          string
	DisplayName string
	Model       string
	Status      ProviderStatus
}
