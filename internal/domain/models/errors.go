package models

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable marks a market-data miss for one instrument. The
// instrument is skipped for the cycle; never fatal.
var ErrDataUnavailable = errors.New("market data unavailable")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// EvaluationError wraps a single strategy/instrument evaluation failure.
// The rest of the ensemble continues.
type EvaluationError struct {
	Strategy   string
	Instrument string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s on %s: %v", e.Strategy, e.Instrument, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// PersistenceError marks a store operation that kept failing after the
// retry budget. Aborts the current cycle only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExecutionError wraps a broker failure. Transient classes may be
// retried; permanent ones are surfaced to the operator unretried.
type ExecutionError struct {
	Transient bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("execution (%s): %v", kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
