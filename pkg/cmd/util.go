package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/config"
	"github.com/pseudomuto/hermes/pkg/metrics"
	"github.com/pseudomuto/hermes/pkg/runner"
	"github.com/pseudomuto/hermes/pkg/state"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

const pushTimeout = 10 * time.Second

type (
	// Target is an open connection to the database being migrated.
	Target struct {
		Runner  *runner.Runner
		Metrics *metrics.Collector
		Close   func() error
	}

	// Connector opens the target described by cfg.
	Connector func(ctx context.Context, cfg *config.Config, toolVersion string) (*Target, error)

	commandParams struct {
		fx.In

		Config  *config.Config
		Connect Connector
		Version *Version
	}
)

func connectClickHouse(ctx context.Context, cfg *config.Config, toolVersion string) (*Target, error) {
	dsn, err := cfg.ClickHouse.DSN()
	if err != nil {
		return nil, err
	}

	client, err := clickhouse.NewClientWithOptions(ctx, dsn, cfg.ClickHouse.ClientOptions())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ClickHouse client")
	}

	m := metrics.New()
	store := state.NewClickHouseStore(state.ClickHouseConfig{
		ClickHouse:    client,
		Database:      cfg.Tracking.Database,
		LeaseDuration: cfg.Tracking.LeaseDuration.Duration,
		ToolVersion:   toolVersion,
	})

	return &Target{
		Runner: runner.New(runner.Config{
			Migrations:    os.DirFS(cfg.MigrationsLocation),
			ClickHouse:    client,
			Store:         store,
			LockTimeout:   cfg.Tracking.LockTimeout.Duration,
			LeaseDuration: cfg.Tracking.LeaseDuration.Duration,
			Observer:      m,
			ToolVersion:   toolVersion,
		}),
		Metrics: m,
		Close:   client.Close,
	}, nil
}

// withTarget opens the configured target, runs fn and closes it again. When
// push is set and a Pushgateway is configured the run's metrics are pushed
// whether fn succeeded or not.
func withTarget(ctx context.Context, p commandParams, push bool, fn func(*Target) error) error {
	target, err := p.Connect(ctx, p.Config, p.Version.Version)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	runErr := fn(target)

	if push && p.Config.Metrics.Pushgateway != "" && target.Metrics != nil {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()

		if err := target.Metrics.Push(pushCtx, p.Config.Metrics.Pushgateway, p.Config.Metrics.Job); err != nil {
			slog.Warn("Failed to push metrics", "pushgateway", p.Config.Metrics.Pushgateway, "err", err)
		}
	}

	return runErr
}

// targetArg returns the single positional target, or def when none was
// given and def is not empty.
func targetArg(cmd *cli.Command, def string) (string, error) {
	switch cmd.Args().Len() {
	case 0:
		if def != "" {
			return def, nil
		}
	case 1:
		return cmd.Args().First(), nil
	}

	return "", errors.Errorf("%s expects a single target: head, base or a revision", cmd.Name)
}
