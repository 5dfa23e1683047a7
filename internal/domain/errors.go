package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the API boundary. Handlers map these to HTTP
// statuses; nothing below the handler layer knows about HTTP.
var (
	// ErrNotFound: the referenced collaborator or grant does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated: an operation requiring an identity was attempted
	// without one. Kept distinct from validation errors so clients can
	// redirect to sign-in rather than fix the request body.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrStorageUnavailable: transient backing-store failure. Safe to retry;
	// the unlock transaction is idempotent.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConflict: the ledger's atomic primitive hit a conflict it could not
	// resolve by returning the winner. Treated as retryable.
	ErrConflict = errors.New("conflict")
)

// ValidationError marks malformed or missing required input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a backing-store failure so callers can match it with
// errors.Is(err, ErrStorageUnavailable) while keeping the cause in the chain.
func StorageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
