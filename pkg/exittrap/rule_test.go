package exittrap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysguard/pkg/guard"
	"sysguard/pkg/guard/guardtest"
)

func exits(status int) guard.Statement {
	return func() error {
		Exit(status)
		return nil
	}
}

func returns() error { return nil }

// =============================================================================
// MATCHER
// =============================================================================

func TestRule_Matcher(t *testing.T) {
	tests := []struct {
		name    string
		rule    *Rule
		body    guard.Statement
		wantMsg string
	}{
		{"none and no exit passes", New(), returns, ""},
		{"any and exit 0 passes", New().ExpectSystemExit(), exits(0), ""},
		{"any and exit 3 passes", New().ExpectSystemExit(), exits(3), ""},
		{"status matches", New().ExpectSystemExitWithStatus(2), exits(2), ""},
		{"wrong status", New().ExpectSystemExitWithStatus(0), exits(1), "wrong exit status: expected 0, got 1"},
		{"any but no exit", New().ExpectSystemExit(), returns, "exit not called"},
		{"status but no exit", New().ExpectSystemExitWithStatus(4), returns, "exit not called"},
		{"unexpected exit", New(), exits(0), "unexpected termination with status 0"},
		{"unexpected nonzero exit", New(), exits(7), "unexpected termination with status 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Evaluate(tt.rule, tt.body)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, guard.IsAssertion(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestRule_CodeAfterExitDoesNotRun(t *testing.T) {
	reached := false
	err := guard.Evaluate(New().ExpectSystemExit(), func() error {
		Exit(1)
		reached = true
		return nil
	})

	assert.NoError(t, err)
	assert.False(t, reached)
}

func TestRule_ExitSignalReturnedAsError(t *testing.T) {
	err := guard.Evaluate(New().ExpectSystemExitWithStatus(5), func() error {
		return fmt.Errorf("worker main: %w", newSignal(5))
	})
	assert.NoError(t, err)

	err = guard.Evaluate(New(), func() error {
		return fmt.Errorf("worker main: %w", newSignal(5))
	})
	assert.EqualError(t, err, "unexpected termination with status 5")
}

// =============================================================================
// PASS-THROUGH
// =============================================================================

func TestRule_WrappedSignalPanic(t *testing.T) {
	err := guard.Evaluate(New().ExpectSystemExitWithStatus(4), func() error {
		panic(fmt.Errorf("handler: %w", newSignal(4)))
	})
	assert.NoError(t, err)

	err = guard.Evaluate(New(), func() error {
		panic(fmt.Errorf("handler: %w", newSignal(4)))
	})
	assert.EqualError(t, err, "unexpected termination with status 4")
}

func TestRule_OtherErrorsPassThrough(t *testing.T) {
	bodyErr := errors.New("assertion in body")

	err := guard.Evaluate(New().ExpectSystemExit(), func() error {
		return bodyErr
	})

	assert.Same(t, bodyErr, err)
}

func TestRule_OtherPanicsPassThrough(t *testing.T) {
	before := Current()

	assert.PanicsWithValue(t, "boom", func() {
		_ = guard.Evaluate(New().ExpectSystemExit(), func() error {
			panic("boom")
		})
	})
	assert.Equal(t, before, Current())
}

// =============================================================================
// POLICY
// =============================================================================

type recordingPolicy struct {
	exits       []int
	permissions []string
	deny        error
}

func (p *recordingPolicy) CheckExit(status int) {
	p.exits = append(p.exits, status)
}

func (p *recordingPolicy) CheckPermission(name string) error {
	p.permissions = append(p.permissions, name)
	return p.deny
}

func installPolicy(t *testing.T, p Policy) {
	t.Helper()
	prev := SetPolicy(p)
	t.Cleanup(func() { SetPolicy(prev) })
}

func TestRule_RestoresPreviousPolicy(t *testing.T) {
	outer := &recordingPolicy{}
	installPolicy(t, outer)

	var during Policy
	err := guard.Evaluate(New().ExpectSystemExit(), func() error {
		during = Current()
		Exit(0)
		return nil
	})

	require.NoError(t, err)
	trap, ok := during.(*Trap)
	require.True(t, ok, "a trap is active while the statement runs")
	assert.Same(t, outer, trap.Previous())
	assert.Same(t, outer, Current())
	assert.Empty(t, outer.exits, "the previous policy never sees a trapped exit")
}

func TestRule_RestoresAbsentPolicy(t *testing.T) {
	installPolicy(t, nil)

	require.NoError(t, guard.Evaluate(New(), returns))
	assert.Nil(t, Current())

	require.NoError(t, guard.Evaluate(New().ExpectSystemExit(), exits(1)))
	assert.Nil(t, Current())
}

func TestRule_PolicyRestoredBeforeMatching(t *testing.T) {
	installPolicy(t, nil)

	var seen Policy = &recordingPolicy{}
	rule := New().ExpectSystemExit().CheckAssertionAfterwards(func() error {
		seen = Current()
		return nil
	})

	require.NoError(t, guard.Evaluate(rule, exits(0)))
	assert.Nil(t, seen)
}

func TestTrap_PermissionDelegatesButAllows(t *testing.T) {
	outer := &recordingPolicy{deny: errors.New("denied")}
	installPolicy(t, outer)

	var got error
	err := guard.Evaluate(New(), func() error {
		got = CheckPermission("setIO")
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, got)
	assert.Equal(t, []string{"setIO"}, outer.permissions)
}

func TestCheckPermission_WithoutPolicy(t *testing.T) {
	installPolicy(t, nil)
	assert.NoError(t, CheckPermission("anything"))
}

func TestExit_WithoutTrapCallsOSExit(t *testing.T) {
	outer := &recordingPolicy{}
	installPolicy(t, outer)

	var exited []int
	guard.Swap(t, &osExit, func(code int) { exited = append(exited, code) })

	Exit(3)

	assert.Equal(t, []int{3}, outer.exits)
	assert.Equal(t, []int{3}, exited)
}

func TestRule_Nested(t *testing.T) {
	installPolicy(t, nil)

	outer := New().ExpectSystemExitWithStatus(2)
	err := guard.Evaluate(outer, func() error {
		inner := New().ExpectSystemExitWithStatus(1)
		if err := guard.Evaluate(inner, exits(1)); err != nil {
			return err
		}
		Exit(2)
		return nil
	})

	assert.NoError(t, err)
	assert.Nil(t, Current())
}

// =============================================================================
// EXPECTATION
// =============================================================================

func TestExpectation_Transitions(t *testing.T) {
	var e Expectation
	assert.Equal(t, ExpectNone, e.Kind())

	e.ExpectAny()
	assert.Equal(t, ExpectAny, e.Kind())

	e.ExpectStatus(3)
	assert.Equal(t, ExpectStatus, e.Kind())
	assert.Equal(t, 3, e.Status())

	e.ExpectAny()
	assert.Equal(t, ExpectStatus, e.Kind(), "any does not widen an expected status")

	e.ExpectStatus(4)
	assert.Equal(t, 4, e.Status(), "last status wins")
}

func TestExpectation_FrozenWhileRunning(t *testing.T) {
	rule := New()
	err := guard.Evaluate(rule, func() error {
		assert.PanicsWithValue(t, "exittrap: expectation cannot change while its statement runs", func() {
			rule.ExpectSystemExit()
		})
		return nil
	})
	require.NoError(t, err)

	rule.ExpectSystemExit()
	assert.Equal(t, ExpectAny, rule.Expectation().Kind())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "none", ExpectNone.String())
	assert.Equal(t, "any", ExpectAny.String())
	assert.Equal(t, "status", ExpectStatus.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

// =============================================================================
// ASSERTIONS AFTERWARDS
// =============================================================================

func TestRule_CheckAssertionAfterwards(t *testing.T) {
	var calls []string
	rule := New().ExpectSystemExit().
		CheckAssertionAfterwards(func() error {
			calls = append(calls, "first")
			return nil
		}).
		CheckAssertionAfterwards(func() error {
			calls = append(calls, "second")
			return guard.Failf("state not saved")
		}).
		CheckAssertionAfterwards(func() error {
			calls = append(calls, "third")
			return nil
		})

	err := guard.Evaluate(rule, exits(0))

	assert.EqualError(t, err, "state not saved")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRule_AssertionsSkippedOnMismatch(t *testing.T) {
	called := false
	rule := New().ExpectSystemExitWithStatus(0).CheckAssertionAfterwards(func() error {
		called = true
		return nil
	})

	err := guard.Evaluate(rule, exits(1))

	assert.EqualError(t, err, "wrong exit status: expected 0, got 1")
	assert.False(t, called)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestRule_Run(t *testing.T) {
	tb := guardtest.New()
	New().ExpectSystemExitWithStatus(0).Run(tb, func() { Exit(1) })
	assert.Equal(t, []string{"wrong exit status: expected 0, got 1"}, tb.Errors())

	tb = guardtest.New()
	New().Run(tb, func() {})
	assert.Empty(t, tb.Errors())
}

func TestAsSignal(t *testing.T) {
	sig := newSignal(2)

	got, ok := AsSignal(sig)
	assert.True(t, ok)
	assert.Same(t, sig, got)

	got, ok = AsSignal(fmt.Errorf("wrapped: %w", sig))
	assert.True(t, ok)
	assert.Same(t, sig, got)

	_, ok = AsSignal("not a signal")
	assert.False(t, ok)
	_, ok = AsSignal(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "exit requested with status 2", sig.Error())
}
