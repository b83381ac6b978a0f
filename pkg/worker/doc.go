// Package worker starts the background goroutines of an entry point under
// test and stops them before the rules around it tear down.
//
// A Launcher is the innermost rule of a chain, so every worker starts after
// outer rules such as a stream capture are installed and is stopped before
// they restore:
//
//	l := worker.New()
//	rule := guard.Chain(stream.Stdout().Mute(), exittrap.New(), l)
//	err := guard.Evaluate(rule, func() error {
//		return l.Go("server", srv.Serve)
//	})
//
// A worker that outlives the stop timeout yields a *StopError, which wraps
// guard.ErrResourceInUse: the stream it writes to stays captured.
package worker
