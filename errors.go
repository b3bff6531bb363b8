package entitle

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput   = errors.New("entitle: invalid input")
	ErrUnknownFeature = errors.New("entitle: unknown feature key")
	ErrInvalidKind    = errors.New("entitle: invalid usage kind")

	// Store errors
	ErrStoreNotReady     = errors.New("entitle: store not ready")
	ErrStoreClosed       = errors.New("entitle: store is closed")
	ErrTransactionFailed = errors.New("entitle: transaction failed")
	ErrCASConflict       = errors.New("entitle: compare-and-swap retries exhausted")
	ErrMigrationFailed   = errors.New("entitle: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("entitle: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsStoreError returns true if the error originates from the persistence layer.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrCASConflict) ||
		errors.Is(err, ErrMigrationFailed)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrCASConflict)
}
