// Command sysguard inspects the sysguard configuration and verifies that
// stream capture, exit trapping and the worker launcher work on this host.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sysguard/internal/config"
	"sysguard/internal/logging"
	"sysguard/pkg/exittrap"
)

var (
	// exit is the termination seam; tests trap it.
	exit = exittrap.Exit

	logger = zap.NewNop()
)

type options struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "sysguard",
		Short: "Guard process-wide state in tests",
		Long: `sysguard swaps process-wide resources (standard streams, the logger
output, the termination policy) for the duration of a test and restores them
afterwards, on every exit path.

The command prints the effective configuration and runs a self check of the
capture, exit trap and worker engines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.verbose {
				cfg.Logging.DebugMode = true
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := logging.Initialize(cfg.Logging); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.cfg = cfg
			logger = logging.Get(logging.CategoryCLI)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newSelfcheckCmd(opts))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Resolve()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}
}
