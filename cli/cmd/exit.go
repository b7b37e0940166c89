package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/types"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailed  = 1
	exitInvalid = 2
	exitNoData  = 3
)

// exitCode maps a fetch error and outcome to a process exit code.
func exitCode(err error, outcome string) int {
	switch {
	case err == nil && outcome == adapter.OutcomeNoData:
		return exitNoData
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrInvalidQuery), isConfigError(err):
		return exitInvalid
	default:
		return exitFailed
	}
}

// exitFor wraps err in a cli.Exit carrying the matching code.
func exitFor(err error, outcome string) error {
	code := exitCode(err, outcome)
	if err == nil {
		return cli.Exit("", code)
	}
	if errors.Is(err, context.Canceled) {
		return cli.Exit("interrupted", code)
	}
	return cli.Exit(fmt.Sprintf("Error: %v", err), code)
}

// invalid reports a configuration or usage problem.
func invalid(err error) error {
	return cli.Exit(fmt.Sprintf("Error: %v", err), exitInvalid)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
