package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"sysguard/internal/config"
	"sysguard/internal/logging"
	"sysguard/pkg/guard"
)

// Capture replaces a Target with a Sink for the duration of a statement.
// Configuration methods return the Capture so they can be chained; they
// may be called before the statement starts or from inside it.
type Capture struct {
	target Target
	sink   *Sink

	encodingName  string
	enc           encoding.Encoding
	encErr        error
	lineSeparator string

	mu  sync.Mutex
	red redirection

	log *zap.Logger
}

// Option configures a Capture.
type Option func(*Capture)

// WithEncoding sets the encoding used to decode the live log.
func WithEncoding(name string) Option {
	return func(c *Capture) {
		c.encodingName = name
	}
}

// WithLineSeparator sets the separator LogWithNormalizedLineSeparator
// rewrites to "\n".
func WithLineSeparator(sep string) Option {
	return func(c *Capture) {
		c.lineSeparator = sep
	}
}

// New returns a Capture for target. Encoding and line separator default to
// the process configuration.
func New(target Target, opts ...Option) *Capture {
	cfg := config.Current()
	c := &Capture{
		target:        target,
		sink:          NewSink(nil),
		encodingName:  cfg.Stream.Encoding,
		lineSeparator: cfg.LineSeparator(),
		log:           logging.Get(logging.CategoryStream).With(zap.String("target", target.Name())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.enc, c.encErr = lookupEncoding(c.encodingName)
	return c
}

// Stdout returns a Capture of os.Stdout.
func Stdout(opts ...Option) *Capture {
	return New(StdoutFile, opts...)
}

// Stderr returns a Capture of os.Stderr.
func Stderr(opts ...Option) *Capture {
	return New(StderrFile, opts...)
}

// Mute stops writes from reaching the original stream.
func (c *Capture) Mute() *Capture {
	c.sync()
	c.sink.Mute()
	return c
}

// MuteForSuccessfulTests mutes the stream and keeps a failure log that is
// written to the original stream if the statement fails.
func (c *Capture) MuteForSuccessfulTests() *Capture {
	c.sync()
	c.sink.Mute()
	c.sink.EnableFailureLog()
	return c
}

// EnableLog records writes in the live log.
func (c *Capture) EnableLog() *Capture {
	c.sync()
	c.sink.EnableLog()
	return c
}

// ClearLog empties the live log.
func (c *Capture) ClearLog() *Capture {
	c.sync()
	c.sink.ClearLog()
	return c
}

// Bytes returns the raw live log.
func (c *Capture) Bytes() []byte {
	c.sync()
	return c.sink.LiveLog()
}

// Log returns the live log decoded with the configured encoding. It panics
// with an *EncodingError if the bytes cannot be decoded.
func (c *Capture) Log() string {
	s, err := c.LogE()
	if err != nil {
		panic(err)
	}
	return s
}

// LogE is Log returning the decoding error instead of panicking.
func (c *Capture) LogE() (string, error) {
	if c.encErr != nil {
		return "", c.encErr
	}
	return decode(c.enc, c.encodingName, c.Bytes())
}

// LogWithNormalizedLineSeparator is Log with every line separator replaced
// by "\n".
func (c *Capture) LogWithNormalizedLineSeparator() string {
	s := c.Log()
	if c.lineSeparator == "" || c.lineSeparator == "\n" {
		return s
	}
	return strings.ReplaceAll(s, c.lineSeparator, "\n")
}

// Sink exposes the underlying Sink.
func (c *Capture) Sink() *Sink {
	return c.sink
}

func (c *Capture) sync() {
	c.mu.Lock()
	red := c.red
	c.mu.Unlock()
	if red != nil {
		red.sync()
	}
}

// Apply implements guard.TestRule. The failure log is replayed when base
// returns an error, panics or exits its goroutine.
func (c *Capture) Apply(base guard.Statement) guard.Statement {
	return func() (err error) {
		if err := c.Before(); err != nil {
			return err
		}

		completed := false
		defer func() {
			if completed && errors.Is(err, guard.ErrResourceInUse) {
				c.abandon(err)
				return
			}
			afterErr := c.finish(!completed || err != nil)
			if afterErr == nil {
				return
			}
			var re *guard.RestoreError
			isRestore := errors.As(afterErr, &re)
			if completed {
				if isRestore {
					re.Masked = err
				}
				err = afterErr
				return
			}
			if isRestore {
				re.Masked = recover()
				panic(re)
			}
			// Replay errors never mask an in-flight panic.
			c.log.Error("failure log replay failed", zap.Error(afterErr))
		}()

		err = base()
		completed = true
		return err
	}
}

// Before installs the Sink in place of the target.
func (c *Capture) Before() error {
	if c.encErr != nil {
		return c.encErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.red != nil {
		return fmt.Errorf("stream: %s capture already installed", c.target.Name())
	}
	red, err := c.target.redirect(func(original io.Writer) io.Writer {
		c.sink.setOriginal(original)
		return c.sink
	})
	if err != nil {
		return err
	}
	c.red = red
	c.log.Debug("capture installed", zap.Bool("muted", c.sink.Muted()))
	return nil
}

// After restores the target as after a successful statement.
func (c *Capture) After() error {
	return c.finish(false)
}

// AfterFailure restores the target, first replaying the failure log when
// failed is true.
func (c *Capture) AfterFailure(failed bool) error {
	return c.finish(failed)
}

// Start installs the capture now and restores it when t finishes,
// replaying the failure log if t failed or was skipped.
func (c *Capture) Start(t guard.TB) *Capture {
	t.Helper()
	if err := c.Before(); err != nil {
		t.Errorf("%v", err)
		return c
	}
	t.Cleanup(func() {
		if err := c.finish(t.Failed() || t.Skipped()); err != nil {
			t.Errorf("%v", err)
		}
	})
	return c
}

func (c *Capture) finish(failed bool) error {
	c.mu.Lock()
	red := c.red
	c.mu.Unlock()
	if red == nil {
		return nil
	}

	var replayErr error
	if failed {
		// Replay ahead of the restore; bytes still in flight are replayed
		// once the pipe is drained.
		red.sync()
		replayErr = c.sink.ReplayFailureLog()
	}

	restoreErr := red.restore()

	c.mu.Lock()
	c.red = nil
	c.mu.Unlock()

	if failed {
		if err := c.sink.ReplayFailureLog(); replayErr == nil {
			replayErr = err
		}
		c.log.Debug("failure log replayed")
	} else {
		c.sink.DiscardFailureLog()
	}

	if restoreErr != nil {
		return restoreErr
	}
	return replayErr
}

// abandon leaves the Sink installed because a writer may still be using it.
func (c *Capture) abandon(cause error) {
	c.log.Error("leaving capture installed while a writer may still be active", zap.Error(cause))
}
