package guard

import (
	"errors"
	"fmt"
)

// ErrResourceInUse marks a failure after which a replaced resource may still
// be written to by someone other than the body. Engines that see it leave
// their replacement installed rather than restore under an active writer.
var ErrResourceInUse = errors.New("resource still in use")

// AssertionError is a user-visible test failure.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Failf returns an *AssertionError with a formatted message.
func Failf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// IsAssertion reports whether err carries an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// RestoreError reports that reinstating the original value of a resource
// failed. It masks the body's own outcome.
type RestoreError struct {
	Resource string
	Err      error
	// Masked is the body's error or panic value that this failure hides, if any.
	Masked any
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("failed to restore %s: %v", e.Resource, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking Setter.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
