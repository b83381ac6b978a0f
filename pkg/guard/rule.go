package guard

import "fmt"

// Statement is a unit of work. A non-nil error or a panic means it failed.
type Statement func() error

// TestRule decorates a Statement.
type TestRule interface {
	Apply(base Statement) Statement
}

// TestRuleFunc adapts a function to TestRule.
type TestRuleFunc func(base Statement) Statement

// Apply calls f(base).
func (f TestRuleFunc) Apply(base Statement) Statement {
	return f(base)
}

// Rule is the before/after shape of a scoped guard: Before captures and
// installs, After restores.
type Rule interface {
	Before() error
	After() error
}

// External turns a Rule into a TestRule whose statement runs
//
//	Before(); defer After(); base()
//
// Base is skipped when Before fails. An After error replaces the base's.
func External(r Rule) TestRule {
	return TestRuleFunc(func(base Statement) Statement {
		return func() (err error) {
			if err := r.Before(); err != nil {
				return err
			}
			defer func() {
				if afterErr := r.After(); afterErr != nil {
					err = afterErr
				}
			}()
			return base()
		}
	})
}

// Chain nests rules so that rules[0] is outermost: its setup runs first and
// its teardown last.
func Chain(rules ...TestRule) TestRule {
	return TestRuleFunc(func(base Statement) Statement {
		s := base
		for i := len(rules) - 1; i >= 0; i-- {
			s = rules[i].Apply(s)
		}
		return s
	})
}

// Evaluate applies rule to base and runs the result.
func Evaluate(rule TestRule, base Statement) error {
	return rule.Apply(base)()
}

// ValueRule swaps a package-level variable for the duration of a statement.
type ValueRule[T any] struct {
	name        string
	ptr         *T
	replacement T
	original    T
}

// Value returns a rule that sets *ptr to replacement in Before and puts the
// original back in After. The rule is named after the variable's type until
// Named is called.
func Value[T any](ptr *T, replacement T) *ValueRule[T] {
	return &ValueRule[T]{name: fmt.Sprintf("%T", ptr), ptr: ptr, replacement: replacement}
}

// Named sets the resource name used in logs and restore errors.
func (v *ValueRule[T]) Named(name string) *ValueRule[T] {
	v.name = name
	return v
}

// Name returns the resource name.
func (v *ValueRule[T]) Name() string {
	return v.name
}

// Before records the current value and installs the replacement.
func (v *ValueRule[T]) Before() error {
	v.original = *v.ptr
	*v.ptr = v.replacement
	return nil
}

// After reinstates the recorded value.
func (v *ValueRule[T]) After() error {
	*v.ptr = v.original
	return nil
}

// Apply implements TestRule.
func (v *ValueRule[T]) Apply(base Statement) Statement {
	return func() error {
		return Run(Var(v.name, v.ptr), v.replacement, base)
	}
}
