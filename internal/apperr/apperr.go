// Package apperr defines the failure taxonomy shared across the
// service. Callers classify failures with errors.Is and wrap with
// fmt.Errorf("...: %w", err) to add context.
package apperr

import "errors"

var (
	// ErrValidation covers malformed or out-of-range input. Raised
	// before any store access; never partially applied.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized means the caller is not a party to the
	// resource or lacks the required role.
	ErrUnauthorized = errors.New("not allowed")

	// ErrConflict covers illegal transitions, lost accept races and
	// duplicate actions. Always re-checked at the moment of
	// mutation, never from a stale read.
	ErrConflict = errors.New("conflict")

	ErrNotFound = errors.New("not found")

	// ErrTransient marks store or network hiccups that are safe to
	// retry; transactions are all-or-nothing so no partial mutation
	// can have happened.
	ErrTransient = errors.New("temporarily unavailable")
)
