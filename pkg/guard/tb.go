package guard

// TB is the part of testing.TB the guards need.
type TB interface {
	Helper()
	Cleanup(func())
	Errorf(format string, args ...any)
	Failed() bool
	Skipped() bool
}

// Start runs r.Before now and r.After when the test finishes. Errors are
// reported through t.Errorf.
func Start(t TB, r Rule) bool {
	t.Helper()
	if err := r.Before(); err != nil {
		t.Errorf("%v", err)
		return false
	}
	t.Cleanup(func() {
		if err := r.After(); err != nil {
			t.Errorf("%v", err)
		}
	})
	return true
}

// Swap sets *target to replacement for the rest of the test.
func Swap[T any](t TB, target *T, replacement T) {
	t.Helper()
	Start(t, Value(target, replacement))
}
