package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sysguard/internal/config"
	"sysguard/internal/logging"
	"sysguard/pkg/exittrap"
	"sysguard/pkg/guard"
	"sysguard/pkg/stream"
	"sysguard/pkg/worker"
)

// check is one self-check step.
type check struct {
	name string
	run  func(cfg *config.Config) error
}

// checks run in order; tests replace the list.
var checks = []check{
	{"capture/replay-on-failure", checkReplayOnFailure},
	{"capture/quiet-on-success", checkQuietOnSuccess},
	{"capture/stdout", checkStdout},
	{"exittrap/status", checkExitStatus},
	{"exittrap/mismatch", checkExitMismatch},
	{"worker/stop", checkWorkerStop},
}

func newSelfcheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run a capture, exit trap and worker round trip",
		Long: `Runs each engine against throwaway resources and prints one line per
check. Exits with status 0 when every check passes and 1 otherwise.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			status := runSelfcheck(opts.cfg)
			logging.Sync()
			exit(status)
		},
	}
}

// runSelfcheck prints a report and returns the exit status.
func runSelfcheck(cfg *config.Config) int {
	failed := 0
	for _, c := range checks {
		if err := c.run(cfg); err != nil {
			failed++
			logger.Warn("self check failed", zap.String("check", c.name), zap.Error(err))
			fmt.Printf("FAIL %s: %v\n", c.name, err)
			continue
		}
		fmt.Printf("ok   %s\n", c.name)
	}

	if failed > 0 {
		fmt.Printf("%d of %d checks failed\n", failed, len(checks))
		return 1
	}
	fmt.Printf("all %d checks passed\n", len(checks))
	return 0
}

func captureOptions(cfg *config.Config) []stream.Option {
	return []stream.Option{
		stream.WithEncoding(cfg.Stream.Encoding),
		stream.WithLineSeparator(cfg.LineSeparator()),
	}
}

var probe io.Writer

func checkReplayOnFailure(cfg *config.Config) error {
	original := &bytes.Buffer{}
	probe = original
	defer func() { probe = nil }()

	c := stream.New(stream.WriterVar("probe", &probe), captureOptions(cfg)...).MuteForSuccessfulTests()
	want := errors.New("statement failed")
	err := guard.Evaluate(c, func() error {
		fmt.Fprint(probe, "abc")
		if original.Len() != 0 {
			return fmt.Errorf("muted output reached the stream: %q", original.String())
		}
		return want
	})
	if !errors.Is(err, want) {
		return fmt.Errorf("statement error not propagated: %v", err)
	}
	if got := original.String(); got != "abc" {
		return fmt.Errorf("replayed %q, want %q", got, "abc")
	}
	if probe != io.Writer(original) {
		return errors.New("stream not restored")
	}
	return nil
}

func checkQuietOnSuccess(cfg *config.Config) error {
	original := &bytes.Buffer{}
	probe = original
	defer func() { probe = nil }()

	c := stream.New(stream.WriterVar("probe", &probe), captureOptions(cfg)...).MuteForSuccessfulTests()
	if err := guard.Evaluate(c, func() error {
		fmt.Fprint(probe, "abc")
		return nil
	}); err != nil {
		return err
	}
	if original.Len() != 0 {
		return fmt.Errorf("successful statement leaked %q", original.String())
	}
	return nil
}

func checkStdout(cfg *config.Config) error {
	before := os.Stdout
	c := stream.Stdout(captureOptions(cfg)...).Mute().EnableLog()
	if err := guard.Evaluate(c, func() error {
		fmt.Print("ping")
		return nil
	}); err != nil {
		return err
	}
	if os.Stdout != before {
		return errors.New("stdout not restored")
	}
	got, err := c.LogE()
	if err != nil {
		return err
	}
	if got != "ping" {
		return fmt.Errorf("captured %q, want %q", got, "ping")
	}
	return nil
}

func checkExitStatus(*config.Config) error {
	before := exittrap.Current()
	err := guard.Evaluate(exittrap.New().ExpectSystemExitWithStatus(3), func() error {
		exittrap.Exit(3)
		return nil
	})
	if err != nil {
		return err
	}
	if exittrap.Current() != before {
		return errors.New("exit policy not restored")
	}
	return nil
}

func checkExitMismatch(*config.Config) error {
	const want = "wrong exit status: expected 0, got 1"
	err := guard.Evaluate(exittrap.New().ExpectSystemExitWithStatus(0), func() error {
		exittrap.Exit(1)
		return nil
	})
	if err == nil || err.Error() != want {
		return fmt.Errorf("got %v, want %q", err, want)
	}
	return nil
}

func checkWorkerStop(cfg *config.Config) error {
	l := worker.New(worker.WithStopTimeout(cfg.StopTimeout()))
	started := make(chan struct{})
	err := guard.Evaluate(l, func() error {
		if err := l.Go("idle", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}); err != nil {
			return err
		}
		select {
		case <-started:
			return nil
		case <-time.After(cfg.StopTimeout()):
			return errors.New("worker did not start")
		}
	})
	return err
}
