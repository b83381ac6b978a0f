// Package stream virtualizes the process's standard output channels for
// the duration of a test.
//
// A Capture installs a Sink in place of a Target (os.Stdout, os.Stderr,
// the log package's default output, or a package-level io.Writer). Every
// write reaching the Sink is offered independently to three destinations:
//
//   - the original stream, unless muted
//   - the live log, once EnableLog was called
//   - the failure log, in MuteForSuccessfulTests mode
//
// The failure log is replayed to the original stream only when the wrapped
// statement fails, so a passing test stays quiet:
//
//	func TestNoisy(t *testing.T) {
//		out := stream.Stdout().MuteForSuccessfulTests().EnableLog().Start(t)
//		runNoisyThing()
//		assert.Contains(t, out.Log(), "done")
//	}
//
// File targets travel through an os.Pipe whose read end is pumped into the
// Sink. Log reads and flag changes first deliver everything already written
// by the caller, so toggles apply to later writes only. On platforms
// without non-blocking pipe reads this synchronisation is best-effort.
//
// Disallow is the strict companion: the first byte written fails the test.
package stream
