package application

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidState is returned when an operation is not allowed in the engine's current state.
	ErrInvalidState = errors.New("application: invalid state")
	// ErrNotArchived is returned by EndSession when occupancy was released but
	// the history entry could not be written.
	ErrNotArchived = errors.New("application: session not archived")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// ConflictReason distinguishes the two exclusivity rules.
type ConflictReason string

const (
	// ConflictRoomOccupied means another faculty member holds the room.
	ConflictRoomOccupied ConflictReason = "room_occupied"
	// ConflictAttendingElsewhere means the caller already holds another room.
	ConflictAttendingElsewhere ConflictReason = "attending_elsewhere"
)

// ConflictError reports that a commit was refused by an exclusivity rule.
type ConflictError struct {
	Reason ConflictReason
	Room   string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Reason {
	case ConflictRoomOccupied:
		return fmt.Sprintf("room %s is already occupied by another user", e.Room)
	case ConflictAttendingElsewhere:
		if e.Room != "" {
			return fmt.Sprintf("already attending a class in room %s", e.Room)
		}
		return "already attending a class in another room"
	default:
		return "occupancy conflict"
	}
}

// VerificationError reports a scan that does not identify the expected room.
type VerificationError struct {
	Room string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("scanned code does not match room %s", e.Room)
}

// StoreError wraps a failed call to the occupancy store.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
