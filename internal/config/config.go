package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "SYSGUARD_CONFIG"

// Config holds all sysguard configuration.
type Config struct {
	// Stream capture settings
	Stream StreamConfig `yaml:"stream"`

	// Entry-point worker settings
	Worker WorkerConfig `yaml:"worker"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StreamConfig configures the stream capture engine.
type StreamConfig struct {
	Encoding      string `yaml:"encoding"`       // WHATWG label, e.g. utf-8, windows-1252
	LineSeparator string `yaml:"line_separator"` // empty = platform default
}

// WorkerConfig configures the entry-point launcher.
type WorkerConfig struct {
	StopTimeout string `yaml:"stop_timeout"`
}

// DefaultStopTimeout bounds how long a launcher waits for its workers.
const DefaultStopTimeout = 5 * time.Second

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			Encoding: "utf-8",
		},
		Worker: WorkerConfig{
			StopTimeout: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honour the environment
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if enc := os.Getenv("SYSGUARD_ENCODING"); enc != "" {
		c.Stream.Encoding = enc
	}
	if sep := os.Getenv("SYSGUARD_LINE_SEPARATOR"); sep != "" {
		// Accept escaped forms so shells can pass "\r\n"
		if unquoted, err := strconv.Unquote(`"` + sep + `"`); err == nil {
			sep = unquoted
		}
		c.Stream.LineSeparator = sep
	}
	if d := os.Getenv("SYSGUARD_STOP_TIMEOUT"); d != "" {
		c.Worker.StopTimeout = d
	}
	if debug := os.Getenv("SYSGUARD_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
	if level := os.Getenv("SYSGUARD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("SYSGUARD_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
}

// StopTimeout returns the worker stop timeout as a duration.
func (c *Config) StopTimeout() time.Duration {
	d, err := time.ParseDuration(c.Worker.StopTimeout)
	if err != nil || d <= 0 {
		return DefaultStopTimeout
	}
	return d
}

// LineSeparator returns the configured line separator, or the platform's.
func (c *Config) LineSeparator() string {
	if c.Stream.LineSeparator != "" {
		return c.Stream.LineSeparator
	}
	return PlatformLineSeparator()
}

// PlatformLineSeparator returns the line separator of the host platform.
func PlatformLineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// ValidLevels lists all supported log levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Stream.Encoding == "" {
		return fmt.Errorf("stream encoding not configured")
	}

	if d, err := time.ParseDuration(c.Worker.StopTimeout); err != nil {
		return fmt.Errorf("invalid worker stop_timeout %q: %w", c.Worker.StopTimeout, err)
	} else if d <= 0 {
		return fmt.Errorf("worker stop_timeout must be positive, got %s", d)
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (valid: [json console])", c.Logging.Format)
	}

	return nil
}

var (
	resolved     *Config
	resolvedErr  error
	resolvedOnce sync.Once
)

// Resolve returns the process configuration, loading it on first use from
// the file named by SYSGUARD_CONFIG (defaults plus env overrides otherwise).
func Resolve() (*Config, error) {
	resolvedOnce.Do(func() {
		path := os.Getenv(EnvConfigPath)
		if path == "" {
			cfg := DefaultConfig()
			cfg.applyEnvOverrides()
			resolved = cfg
			return
		}
		resolved, resolvedErr = Load(path)
	})
	return resolved, resolvedErr
}

// Current is Resolve without the error: a broken config file falls back to
// defaults so a test helper never fails on configuration alone.
func Current() *Config {
	cfg, err := Resolve()
	if err != nil || cfg == nil {
		return DefaultConfig()
	}
	return cfg
}
