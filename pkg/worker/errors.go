package worker

import (
	"errors"
	"fmt"

	"sysguard/pkg/guard"
)

// ErrNotActive is returned by Go outside the launcher's statement.
var ErrNotActive = errors.New("worker: launcher is not active")

// errAlreadyActive is returned by Before when the launcher is running.
var errAlreadyActive = errors.New("worker: launcher is already active")

// StopError reports a worker still running when the stop timeout expired.
type StopError struct {
	Worker string
	// Masked is the statement's panic value that this failure replaced, if any.
	Masked any
}

func (e *StopError) Error() string {
	return fmt.Sprintf("worker %s cannot be stopped", e.Worker)
}

func (e *StopError) Unwrap() error {
	return guard.ErrResourceInUse
}

// PanicError is a worker's panic re-raised on the goroutine running the
// launcher's statement.
type PanicError struct {
	Worker string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %s panicked: %v", e.Worker, e.Value)
}
