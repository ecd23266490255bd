package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidOutcome rejects analysis results that are not a final verdict.
	ErrInvalidOutcome = errors.New("analysis outcome must be safe or flagged")
)
