package domain

import "errors"

// Failure taxonomy shared across the reconciliation core. Everything here is
// scoped to the article, question, or batch in progress; nothing is fatal to
// the application and nothing is retried automatically.
var (
	// ErrSourceUnavailable: canonical or stored source unreachable during a
	// comparison run. The workflow stays at Idle; retry is manual.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNothingToUpdate: a comparison run found no discrepancies, so the
	// selection step is unreachable.
	ErrNothingToUpdate = errors.New("nothing to update")

	// ErrValidationFailed: an update or verification was requested with zero
	// eligible items; rejected before any external call.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSchemaMissing: a persisted field required by the operation does not
	// exist. Distinct from transient failures so the operator knows a storage
	// migration is required.
	ErrSchemaMissing = errors.New("storage schema missing required field")
)

// AICallError is a failed verification call that still produced a backend
// payload, kept for the error log.
type AICallError struct {
	Message    string
	RawPayload string
}

func (e *AICallError) Error() string { return e.Message }

