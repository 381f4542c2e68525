package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a conditional write observes a revision other than the expected one.
	ErrConflict = errors.New("persistence: revision conflict")
	// ErrDuplicate is returned when a record with the same identity already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record or key fails structural checks.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("persistence: store closed")
)
