package exittrap

import (
	"fmt"
	"sync/atomic"

	"sysguard/pkg/guard"
)

// Kind is the state of an Expectation.
type Kind int

const (
	// ExpectNone: the statement must not request termination.
	ExpectNone Kind = iota
	// ExpectAny: the statement must request termination, any status.
	ExpectAny
	// ExpectStatus: the statement must request termination with Status.
	ExpectStatus
)

func (k Kind) String() string {
	switch k {
	case ExpectNone:
		return "none"
	case ExpectAny:
		return "any"
	case ExpectStatus:
		return "status"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Assertion runs after an expected termination.
type Assertion func() error

// Expectation declares what a statement does about termination.
type Expectation struct {
	kind       Kind
	status     int
	assertions []Assertion
	frozen     atomic.Bool
}

// Kind returns the current state.
func (e *Expectation) Kind() Kind {
	return e.kind
}

// Status returns the expected status; meaningful for ExpectStatus only.
func (e *Expectation) Status() int {
	return e.status
}

// ExpectAny moves None to Any. An expected status is kept.
func (e *Expectation) ExpectAny() {
	e.mutable()
	if e.kind == ExpectNone {
		e.kind = ExpectAny
	}
}

// ExpectStatus moves any state to Status(status), overwriting a previous
// status.
func (e *Expectation) ExpectStatus(status int) {
	e.mutable()
	e.kind = ExpectStatus
	e.status = status
}

// CheckAfterwards registers an assertion run after a matching termination.
func (e *Expectation) CheckAfterwards(a Assertion) {
	e.mutable()
	e.assertions = append(e.assertions, a)
}

func (e *Expectation) mutable() {
	if e.frozen.Load() {
		panic("exittrap: expectation cannot change while its statement runs")
	}
}

// Match compares the observed outcome with the expectation: sig is nil when
// the statement completed without requesting termination.
func (e *Expectation) Match(sig *ExitSignal) error {
	if sig == nil {
		if e.kind == ExpectNone {
			return nil
		}
		return guard.Failf("exit not called")
	}

	switch e.kind {
	case ExpectNone:
		return guard.Failf("unexpected termination with status %d", sig.Status)
	case ExpectStatus:
		if e.status != sig.Status {
			return guard.Failf("wrong exit status: expected %d, got %d", e.status, sig.Status)
		}
	}

	for _, a := range e.assertions {
		if err := a(); err != nil {
			return err
		}
	}
	return nil
}
