// Package logging provides config-driven categorized zap loggers for sysguard.
// Logging is controlled by logging.debug_mode - when false, every category is a no-op.
//
// Log output goes to the stderr file the process started with (captured at
// package init) or to a configured file, never through os.Stderr at call time:
// the stream engines reassign os.Stderr, and diagnostics must not end up in a
// test's captured log.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sysguard/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryGuard    Category = "guard"    // Resource install/restore
	CategoryStream   Category = "stream"   // Stream capture, pump, replay
	CategoryExitTrap Category = "exittrap" // Termination policy and matcher
	CategoryWorker   Category = "worker"   // Entry-point launcher
	CategoryCLI      Category = "cli"      // cmd/sysguard
)

// originalStderr is the process stderr before any capture.
var originalStderr = os.Stderr

var (
	mu       sync.RWMutex
	root     *zap.Logger
	settings config.LoggingConfig
	inited   bool
	loggers  = make(map[Category]*zap.Logger)
)

// Initialize builds the root logger from cfg. Calling it again replaces the
// root logger and drops cached category loggers.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
	root = logger
	settings = cfg
	inited = true
	loggers = make(map[Category]*zap.Logger)
	return nil
}

func build(cfg config.LoggingConfig) (*zap.Logger, error) {
	if !cfg.DebugMode {
		return zap.NewNop(), nil
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	sink := zapcore.Lock(zapcore.AddSync(originalStderr))
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.Lock(file)
	}

	return zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller()), nil
}

// ensureInitialized lazily wires the logger from the resolved configuration.
func ensureInitialized() {
	mu.RLock()
	done := inited
	mu.RUnlock()
	if done {
		return
	}
	if err := Initialize(config.Current().Logging); err != nil {
		fmt.Fprintf(originalStderr, "[logging] Warning: %v\n", err)
		mu.Lock()
		root, inited = zap.NewNop(), true
		mu.Unlock()
	}
}

// Get returns (or creates) the logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *zap.Logger {
	ensureInitialized()

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	var l *zap.Logger
	if root == nil || (settings.Categories != nil && !settings.IsCategoryEnabled(string(category))) {
		l = zap.NewNop()
	} else {
		l = root.Named(string(category))
	}
	loggers[category] = l
	return l
}

// SetForTesting installs logger as the root for every category and returns a
// function restoring the previous state.
func SetForTesting(logger *zap.Logger) (restore func()) {
	mu.Lock()
	prevRoot, prevSettings, prevInited, prevLoggers := root, settings, inited, loggers
	root = logger
	settings = config.LoggingConfig{DebugMode: true}
	inited = true
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()

	return func() {
		mu.Lock()
		root, settings, inited, loggers = prevRoot, prevSettings, prevInited, prevLoggers
		mu.Unlock()
	}
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
