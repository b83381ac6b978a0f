package stream

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"unicode/utf8"

	"sysguard/pkg/guard"
)

// Disallow fails a statement that writes anything to its target.
type Disallow struct {
	target Target

	mu        sync.Mutex
	red       redirection
	violation error
}

// DisallowWrite returns a Disallow for target.
func DisallowWrite(target Target) *Disallow {
	return &Disallow{target: target}
}

// Write refuses p, describing its first character.
func (d *Disallow) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	err := violation(p)
	d.mu.Lock()
	if d.violation == nil {
		d.violation = err
	}
	d.mu.Unlock()
	return 0, err
}

func violation(p []byte) error {
	r, size := utf8.DecodeRune(p)
	var char string
	if r == utf8.RuneError && size <= 1 {
		char = strconv.QuoteToASCII(string(p[:1]))
		char = "'" + char[1:len(char)-1] + "'"
	} else {
		char = strconv.QuoteRune(r)
	}
	return guard.Failf("tried to write %s although this is not allowed", char)
}

// Apply implements guard.TestRule.
func (d *Disallow) Apply(base guard.Statement) guard.Statement {
	return func() (err error) {
		if err := d.Before(); err != nil {
			return err
		}
		defer func() {
			if afterErr := d.After(); afterErr != nil && err == nil {
				err = afterErr
			}
		}()
		return base()
	}
}

// Before installs the refusing writer.
func (d *Disallow) Before() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.red != nil {
		return fmt.Errorf("stream: %s already disallowed", d.target.Name())
	}
	d.violation = nil
	red, err := d.target.redirect(func(io.Writer) io.Writer { return d })
	if err != nil {
		return err
	}
	d.red = red
	return nil
}

// After restores the target and returns the first violation, if any.
func (d *Disallow) After() error {
	d.mu.Lock()
	red := d.red
	d.red = nil
	d.mu.Unlock()
	if red == nil {
		return nil
	}
	if err := red.restore(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violation
}

// Start disallows writes for the rest of the test.
func (d *Disallow) Start(t guard.TB) *Disallow {
	t.Helper()
	guard.Start(t, d)
	return d
}
