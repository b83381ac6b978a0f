// Package guardtest provides a recording guard.TB for testing helpers that
// report through a *testing.T.
package guardtest

import (
	"fmt"
	"sync"
)

// TB records failures and cleanups instead of reporting them.
type TB struct {
	mu       sync.Mutex
	errors   []string
	cleanups []func()
	failed   bool
	skipped  bool
}

// New returns an empty TB.
func New() *TB {
	return &TB{}
}

func (tb *TB) Helper() {}

// Cleanup registers f for Finish.
func (tb *TB) Cleanup(f func()) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.cleanups = append(tb.cleanups, f)
}

// Errorf records a failure.
func (tb *TB) Errorf(format string, args ...any) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.errors = append(tb.errors, fmt.Sprintf(format, args...))
	tb.failed = true
}

// Fail marks the test failed.
func (tb *TB) Fail() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.failed = true
}

// Skip marks the test skipped.
func (tb *TB) Skip() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.skipped = true
}

func (tb *TB) Failed() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.failed
}

func (tb *TB) Skipped() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.skipped
}

// Errors returns the recorded failure messages.
func (tb *TB) Errors() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return append([]string(nil), tb.errors...)
}

// Finish runs the registered cleanups in reverse order, like testing.T.
func (tb *TB) Finish() {
	tb.mu.Lock()
	cleanups := tb.cleanups
	tb.cleanups = nil
	tb.mu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
