package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sysguard/internal/config"
	"sysguard/internal/logging"
	"sysguard/pkg/exittrap"
	"sysguard/pkg/guard"
)

// Func is the body of a worker. It should return once ctx is done.
type Func func(ctx context.Context) error

// Option configures a Launcher.
type Option func(*Launcher)

// WithStopTimeout bounds how long the launcher waits for its workers after
// cancelling them.
func WithStopTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.timeout = d
		}
	}
}

type entry struct {
	name string
	done chan struct{}
}

// Launcher runs named workers for the duration of a statement.
type Launcher struct {
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	ctx     context.Context
	group   *errgroup.Group
	entries []*entry
	panic   *PanicError
}

// New returns a launcher whose stop timeout comes from the configuration
// unless overridden.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		timeout: config.Current().StopTimeout(),
		log:     logging.Get(logging.CategoryWorker),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StopTimeout returns the configured bound.
func (l *Launcher) StopTimeout() time.Duration {
	return l.timeout
}

// Go starts fn on its own goroutine. The context it receives is cancelled
// when the statement ends or another worker fails.
func (l *Launcher) Go(name string, fn Func) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return fmt.Errorf("%w: cannot start %s", ErrNotActive, name)
	}

	e := &entry{name: name, done: make(chan struct{})}
	l.entries = append(l.entries, e)
	ctx := l.ctx
	l.group.Go(func() error {
		defer close(e.done)
		return l.run(ctx, e.name, fn)
	})
	l.log.Debug("worker started", zap.String("worker", name))
	return nil
}

func (l *Launcher) run(ctx context.Context, name string, fn Func) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if sig, ok := exittrap.AsSignal(v); ok {
			l.log.Debug("worker requested termination", zap.String("worker", name), zap.Int("status", sig.Status))
			err = fmt.Errorf("worker %s: %w", name, sig)
			return
		}
		l.mu.Lock()
		if l.panic == nil {
			l.panic = &PanicError{Worker: name, Value: v, Stack: debug.Stack()}
		}
		l.mu.Unlock()
		err = fmt.Errorf("worker %s panicked: %v", name, v)
	}()

	err = fn(ctx)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		err = fmt.Errorf("worker %s: %w", name, err)
	}
	return err
}

// Before makes the launcher active.
func (l *Launcher) Before() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return errAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.group, l.ctx = errgroup.WithContext(ctx)
	l.cancel = cancel
	l.entries = nil
	l.panic = nil
	l.active = true
	return nil
}

// After cancels the workers and waits for them within the stop timeout.
// Workers still running afterwards produce *StopError values; otherwise the
// first worker error is returned.
func (l *Launcher) After() error {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return nil
	}
	l.active = false
	cancel, group, entries := l.cancel, l.group, l.entries
	l.mu.Unlock()

	cancel()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	var stuck []error
	for _, e := range entries {
		select {
		case <-e.done:
		case <-timer.C:
			// Expired: collect every worker that has not finished by now.
			for _, rest := range entries {
				select {
				case <-rest.done:
				default:
					stuck = append(stuck, &StopError{Worker: rest.name})
				}
			}
		}
		if stuck != nil {
			break
		}
	}
	if stuck != nil {
		for _, err := range stuck {
			l.log.Error("worker ignored cancellation", zap.Error(err), zap.Duration("timeout", l.timeout))
		}
		return errors.Join(stuck...)
	}

	l.log.Debug("workers stopped", zap.Int("count", len(entries)))
	return group.Wait()
}

// Wait blocks until every started worker has returned on its own, or ctx is
// done, and returns the first worker error.
func (l *Launcher) Wait(ctx context.Context) error {
	l.mu.Lock()
	entries, group := l.entries, l.group
	l.mu.Unlock()
	if group == nil {
		return nil
	}

	for _, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return group.Wait()
}

// Apply implements guard.TestRule. Workers are stopped when base ends. A
// failure to stop them takes precedence over base's outcome; otherwise
// base's error wins over worker errors, and a worker panic is re-raised as a
// *PanicError once base has returned.
func (l *Launcher) Apply(base guard.Statement) guard.Statement {
	return func() (err error) {
		if err := l.Before(); err != nil {
			return err
		}

		completed := false
		defer func() {
			stopErr := l.After()
			inUse := errors.Is(stopErr, guard.ErrResourceInUse)

			if !completed {
				l.dropPanic("statement panicked")
				if !inUse {
					return
				}
				// Stop the unwinding so outer captures see the fatal error.
				v := recover()
				var se *StopError
				if errors.As(stopErr, &se) {
					se.Masked = v
				}
				err = stopErr
				return
			}

			switch {
			case inUse:
				err = stopErr
			case err == nil:
				err = stopErr
			}

			if inUse {
				l.dropPanic("workers could not be stopped")
				return
			}
			l.mu.Lock()
			p := l.panic
			l.mu.Unlock()
			if p != nil {
				panic(p)
			}
		}()

		err = base()
		completed = true
		return err
	}
}

// dropPanic logs a worker panic that will not be re-raised.
func (l *Launcher) dropPanic(reason string) {
	l.mu.Lock()
	p := l.panic
	l.mu.Unlock()
	if p == nil {
		return
	}
	l.log.Error("worker panic not re-raised",
		zap.String("worker", p.Worker),
		zap.Any("panic", p.Value),
		zap.String("reason", reason),
		zap.ByteString("stack", p.Stack))
}

// Start activates the launcher for the rest of the test.
func (l *Launcher) Start(t guard.TB) *Launcher {
	t.Helper()
	guard.Start(t, l)
	return l
}
