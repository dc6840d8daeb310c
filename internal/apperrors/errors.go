package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input rejected before it reaches the core.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a wallet, withdrawal or payment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds occurs when a reserve or debit exceeds available funds.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidStateTransition is a withdrawal state-machine violation.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidSignature rejects an untrusted gateway callback.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrUnknownTransaction means a callback references no known payment.
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrAmountMismatch means a callback amount differs from the stored payment.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrConcurrencyConflict signals a lost optimistic version check.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match any ValidationError with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// HTTPStatus maps a core error to the status code the transport returns.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownTransaction):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
