package domain

import "time"

// Law identifies a single legal text tracked by the system.
type Law struct {
	ID    string
	Name  string
	BOEID string
}

// CanonicalArticle is read from the official gazette; never persisted or mutated here.
type CanonicalArticle struct {
	Number  string
	Title   string
	Content string
}

// StoredArticle is the locally persisted copy, mutated only through UpdateArticles.
type StoredArticle struct {
	ID      string
	Number  string
	Title   string
	Content string
	LawID   string
}

// Kind classifies one article number after comparing canonical against stored text.
type Kind uint8

const (
	KindMatching Kind = iota
	KindTitleMismatch
	KindContentMismatch
	KindExtraInDB
	KindMissingInDB
)

func (k Kind) String() string {
	switch k {
	case KindMatching:
		return "matching"
	case KindTitleMismatch:
		return "title_mismatch"
	case KindContentMismatch:
		return "content_mismatch"
	case KindExtraInDB:
		return "extra_in_db"
	case KindMissingInDB:
		return "missing_in_db"
	}
	return "unknown"
}

// IsDiscrepancy reports whether the kind requires operator attention.
func (k Kind) IsDiscrepancy() bool {
	return k != KindMatching
}

// ComparisonResult holds the classification of a single article number.
// Similarity fields carry meaning only when the article exists on both sides.
type ComparisonResult struct {
	ArticleNumber     string
	Kind              Kind
	TitleSimilarity   int
	ContentSimilarity int
	StoredID          string
	CanonicalTitle    string
	StoredTitle       string
}

// Selectable reports whether the result can join an update selection.
// Articles absent from storage have nothing to update.
func (r ComparisonResult) Selectable() bool {
	return r.StoredID != ""
}

// KindCounts aggregates a comparison run per kind.
type KindCounts struct {
	Matching        int
	TitleMismatch   int
	ContentMismatch int
	ExtraInDB       int
	MissingInDB     int
}

// Discrepancies returns the number of results needing attention.
func (c KindCounts) Discrepancies() int {
	return c.TitleMismatch + c.ContentMismatch + c.ExtraInDB + c.MissingInDB
}

// ChangeType records how wide an applied update was.
type ChangeType uint8

const (
	ChangeTitleOnly ChangeType = iota
	ChangeFullUpdate
)

func (c ChangeType) String() string {
	if c == ChangeTitleOnly {
		return "title_only"
	}
	return "full_update"
}

// UpdateLogEntry is an append-only audit record, written once per applied update.
type UpdateLogEntry struct {
	ArticleNumber string
	OldTitle      string
	NewTitle      string
	ChangeType    ChangeType
	AppliedAt     time.Time
}

// ArticleUpdate carries everything needed to apply one canonical correction.
// CanonicalContent is only consulted for full updates.
type ArticleUpdate struct {
	ArticleNumber    string
	CanonicalTitle   string
	CanonicalContent string
	StoredTitle      string
	StoredID         string
	Kind             Kind
}

// UpdateItemError records one failed item inside an update batch.
type UpdateItemError struct {
	ArticleNumber string
	Message       string
}

// UpdateOutcome lists, per batch, which articles were updated and which failed.
type UpdateOutcome struct {
	Updated []string
	Errors  []UpdateItemError
}
