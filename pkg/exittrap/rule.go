package exittrap

import (
	"go.uber.org/zap"

	"sysguard/internal/logging"
	"sysguard/pkg/guard"
)

// Rule runs a statement under a Trap and checks its termination behavior.
// Configuration methods return the Rule for chaining and must be called
// before the statement starts.
type Rule struct {
	exp Expectation
	log *zap.Logger
}

// New returns a Rule expecting no termination.
func New() *Rule {
	return &Rule{log: logging.Get(logging.CategoryExitTrap)}
}

// ExpectSystemExit expects a termination request with any status.
func (r *Rule) ExpectSystemExit() *Rule {
	r.exp.ExpectAny()
	return r
}

// ExpectSystemExitWithStatus expects a termination request with status.
func (r *Rule) ExpectSystemExitWithStatus(status int) *Rule {
	r.exp.ExpectStatus(status)
	return r
}

// CheckAssertionAfterwards registers a check run after the expected
// termination request. Its error becomes the statement's.
func (r *Rule) CheckAssertionAfterwards(a Assertion) *Rule {
	r.exp.CheckAfterwards(a)
	return r
}

// Expectation exposes the declared expectation.
func (r *Rule) Expectation() *Expectation {
	return &r.exp
}

// Apply implements guard.TestRule. Errors and panics other than an
// *ExitSignal pass through unmodified and skip the expectation.
func (r *Rule) Apply(base guard.Statement) guard.Statement {
	return func() error {
		r.exp.frozen.Store(true)
		defer r.exp.frozen.Store(false)

		sig, err := r.trapped(base)
		if err != nil {
			return err
		}
		if sig != nil {
			r.log.Debug("statement requested termination", zap.Int("status", sig.Status))
		}
		return r.exp.Match(sig)
	}
}

// trapped runs base with the trap installed. By the time it returns or
// re-panics the previous policy is back in place.
func (r *Rule) trapped(base guard.Statement) (sig *ExitSignal, err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if s, ok := AsSignal(v); ok {
			sig, err = s, nil
			return
		}
		panic(v)
	}()

	trap := NewTrap(Current())
	err = guard.Run(policyResource, Policy(trap), base)
	if s, ok := AsSignal(err); ok {
		return s, nil
	}
	return nil, err
}

// Run evaluates body under the rule and reports a failure through t.
func (r *Rule) Run(t guard.TB, body func()) {
	t.Helper()
	err := r.Apply(func() error {
		body()
		return nil
	})()
	if err != nil {
		t.Errorf("%v", err)
	}
}
