// Package exittrap intercepts process termination requests in tests.
//
// Code under test terminates through Exit instead of os.Exit, directly or
// through a seam:
//
//	var osExit = exittrap.Exit
//
// Outside a trap Exit behaves like os.Exit. Inside a Rule's statement the
// active Policy turns the call into a panic carrying an *ExitSignal, which
// the Rule recovers and checks against the declared expectation:
//
//	rule := exittrap.New().ExpectSystemExitWithStatus(2)
//	err := rule.Apply(func() error {
//		app.Main() // calls exittrap.Exit(2)
//		return nil
//	})()
//
// The previous policy is reinstated before the expectation is evaluated.
package exittrap
