package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pseudomuto/hermes/pkg/cmd"
	"github.com/pseudomuto/hermes/pkg/config"
	"github.com/pseudomuto/hermes/pkg/consts"
	"go.uber.org/fx"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

const (
	startTimeout = 15 * time.Second

	// A step that has started is allowed to finish, which can take as long as
	// the lease it runs under.
	stopTimeout = consts.DefaultLeaseDuration
)

func main() {
	os.Exit(run())
}

// run starts the app and waits for the command itself, not for a signal.
// Interrupts cancel ctx, which stops execution after the running step.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exec *cmd.Execution
	app := fx.New(
		fx.NopLogger,
		fx.StartTimeout(startTimeout),
		fx.StopTimeout(stopTimeout),
		fx.Supply(&cmd.Version{Version: version, Commit: commit, Timestamp: date}),
		fx.Supply(os.Args),
		fx.Provide(func() context.Context { return ctx }),
		config.Module,
		cmd.Module,
		fx.Populate(&exec),
	)

	return cmd.Execute(ctx, app, exec, os.Stderr)
}
