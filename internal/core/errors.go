package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this package wraps exactly one of them,
// so callers can classify with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)

var (
	ErrNegativeAmount  = fmt.Errorf("%w: negative amount", ErrInvalidInput)
	ErrInvalidAmount   = fmt.Errorf("%w: malformed amount", ErrInvalidInput)
	ErrAmountTooLarge  = fmt.Errorf("%w: amount out of range", ErrInvalidInput)
	ErrUnknownMonth    = fmt.Errorf("%w: unknown month", ErrInvalidInput)
	ErrInvalidSession  = fmt.Errorf("%w: malformed session", ErrInvalidInput)
	ErrMissingField    = fmt.Errorf("%w: missing required field", ErrInvalidInput)
	ErrPaidExceedsPart = fmt.Errorf("%w: paid amount exceeds month part", ErrInvalidInput)
	ErrOverpayment     = fmt.Errorf("%w: payment exceeds session schedule", ErrInvalidInput)
	ErrLedgerNotFresh  = fmt.Errorf("%w: ledger already has payments", ErrInvalidInput)
	ErrNothingSelected = fmt.Errorf("%w: select tuition, transport or both", ErrInvalidSelection)
	ErrStudentNotFound = fmt.Errorf("%w: student", ErrNotFound)
	ErrParentNotFound  = fmt.Errorf("%w: parent", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("%w: session ledger", ErrNotFound)
	ErrDuplicateNumber = fmt.Errorf("%w: identifier already taken", ErrConflict)
	ErrSessionExists   = fmt.Errorf("%w: session ledger already exists", ErrConflict)
)

// Kind returns the stable code of the error kind err wraps, or "" for errors
// that did not originate in domain validation (storage and transport failures).
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSelection):
		return "INVALID_SELECTION"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return ""
	}
}
