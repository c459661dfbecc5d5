package services

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrSectionNotFound is returned when the referenced section does not exist.
	ErrSectionNotFound = errors.New("section not found")

	// ErrSectionNotEmpty is returned when deleting a section that still owns books.
	ErrSectionNotEmpty = errors.New("section still contains books")

	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookNotAvailable is returned when a borrow is attempted on a book
	// that is already on loan (or was claimed by a concurrent borrow).
	ErrBookNotAvailable = errors.New("book not available")

	// ErrBookHasRecords is returned when deleting a book that any borrow
	// record, active or historical, still references.
	ErrBookHasRecords = errors.New("book has existing borrow records")

	// ErrRecordNotFound is returned when the referenced borrow record does not exist.
	ErrRecordNotFound = errors.New("borrow record not found")

	// ErrRecordAlreadyReturned is returned when a return is attempted on a
	// record that has already been closed.
	ErrRecordAlreadyReturned = errors.New("book already returned")
)

// ValidationError reports a malformed input field. Handlers map it to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func requireString(field, value string, maxLen int) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if len(value) > maxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxLen)}
	}
	return nil
}

func optionalString(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxLen)}
	}
	return nil
}
