package guard

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sysguard/internal/logging"
)

// Resource is a process-global value that can be read and replaced.
type Resource[T any] struct {
	Name string
	Get  func() T
	Set  func(T) error
}

// Var returns a Resource over a package-level variable.
func Var[T any](name string, ptr *T) Resource[T] {
	return Resource[T]{
		Name: name,
		Get:  func() T { return *ptr },
		Set: func(v T) error {
			*ptr = v
			return nil
		},
	}
}

// Guard is one installation of a replacement into a Resource.
type Guard[T any] struct {
	res         Resource[T]
	original    T
	replacement T

	once       sync.Once
	restoreErr *RestoreError
}

// Install captures the current value of res and sets replacement.
func Install[T any](res Resource[T], replacement T) (*Guard[T], error) {
	original := res.Get()
	if err := set(res, replacement); err != nil {
		return nil, fmt.Errorf("failed to install %s: %w", res.Name, err)
	}
	logging.Get(logging.CategoryGuard).Debug("installed replacement", zap.String("resource", res.Name))
	return &Guard[T]{res: res, original: original, replacement: replacement}, nil
}

// Original returns the value captured at install time.
func (g *Guard[T]) Original() T {
	return g.original
}

// Replacement returns the installed value.
func (g *Guard[T]) Replacement() T {
	return g.replacement
}

// Restore reinstates the original value. Only the first call touches the
// resource; later calls return the first call's result.
func (g *Guard[T]) Restore() *RestoreError {
	g.once.Do(func() {
		log := logging.Get(logging.CategoryGuard)
		if err := set(g.res, g.original); err != nil {
			log.Error("restoration failed", zap.String("resource", g.res.Name), zap.Error(err))
			g.restoreErr = &RestoreError{Resource: g.res.Name, Err: err}
			return
		}
		log.Debug("restored original", zap.String("resource", g.res.Name))
	})
	return g.restoreErr
}

// Run installs replacement into res, executes body and restores the value
// res held before, exactly once, however body ends. The body's error is
// returned unmodified and a panic is re-raised unmodified, unless restoring
// fails: the *RestoreError then takes their place.
func Run[T any](res Resource[T], replacement T, body Statement) (err error) {
	g, err := Install(res, replacement)
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		re := g.Restore()
		if re == nil {
			return
		}
		if completed {
			re.Masked = err
			err = re
			return
		}
		// Stops an in-flight panic; Goexit recovers nil and keeps unwinding
		// until the panic below replaces it.
		re.Masked = recover()
		panic(re)
	}()

	err = body()
	completed = true
	return err
}

func set[T any](res Resource[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return res.Set(v)
}
