package shared

import (
	"errors"

	"github.com/odyssey-erp/tradeflow/internal/platform/db"
)

var (
	// ErrNotFound indicates a referenced company-scoped entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate child or an already processed request.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSequenceContention indicates a document number could not be issued
	// after bounded retries. Callers may retry later.
	ErrSequenceContention = errors.New("sequence contention")
	// ErrForbidden indicates the caller identity is missing or not permitted.
	ErrForbidden = errors.New("forbidden")
)

// IsRetryable reports whether err is a transient failure the caller may retry
// with the same input: sequence contention, lost serialization races and lock
// or statement timeouts.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSequenceContention) || db.IsTransient(err)
}
