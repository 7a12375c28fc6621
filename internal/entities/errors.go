package entities

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrConflict is the sentinel wrapped by every ConflictError, so
	// callers can errors.Is against a single value.
	ErrConflict = errors.New("orchestration conflict")
)

// ParseError reports a structurally malformed CSV payload. It is fatal for
// that batch only; other batches are unaffected.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// ConflictError reports an event recorded for a nonexistent order or a
// transition the state machine does not permit.
type ConflictError struct {
	OrderID string
	Stage   Stage
	From    InternalState
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s: %s not allowed from state %q: %s", e.OrderID, e.Stage, e.From, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
