package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidAmount  = &ValidationError{Field: "amount", Reason: "invalid amount"}
	ErrNegativeAmount = &ValidationError{Field: "amount", Reason: "amount cannot be negative"}
	ErrEmptyCategory  = &ValidationError{Field: "category", Reason: "empty category"}
)

// ValidationError reports bad user input. It is caught before the ledger is
// touched and rendered as inline form feedback.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a delete target absent from the ledger.
type NotFoundError struct {
	What string // "date", "category" or "entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StoreUnavailableError wraps a backend connection or auth failure.
type StoreUnavailableError struct {
	Backend string
	Err     error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Backend, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *StoreUnavailableError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// Unavailable wraps err as a StoreUnavailableError unless it already is one
// or is nil.
func Unavailable(backend string, err error) error {
	if err == nil {
		return nil
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StoreUnavailableError{Backend: backend, Err: err}
}

// IsDomainError reports whether err is one of the typed ledger errors.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreUnavailable)
}
