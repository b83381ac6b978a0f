// Package guard provides scoped replacement of process-global resources.
//
// A guard captures the current value of a global resource, installs a
// replacement, runs a unit of work, and reinstates the original value
// exactly once on every exit path: normal return, returned error, panic,
// and runtime.Goexit (t.FailNow, t.SkipNow).
//
// Building blocks:
//   - Run: the primitive for one Resource.
//   - Statement / TestRule: a unit of work and a decorator around it.
//   - Rule / External: the before/after shape consumed by simple
//     save-and-restore helpers.
//   - Chain: nests rules, first rule outermost.
//   - Start: binds a Rule to a *testing.T through t.Cleanup.
//
// Restoration failures are fatal. They are logged and returned as a
// *RestoreError that replaces whatever the body itself returned or raised.
package guard
