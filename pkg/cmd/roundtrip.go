package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/config"
	"github.com/pseudomuto/hermes/pkg/docker"
	"github.com/pseudomuto/hermes/pkg/roundtrip"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	// HarnessFactory builds the round-trip harness for cfg.
	HarnessFactory func(cfg *config.Config, concurrency int) *roundtrip.Harness

	roundtripParams struct {
		fx.In

		Config     *config.Config
		NewHarness HarnessFactory
	}
)

func newHarness(cfg *config.Config, concurrency int) *roundtrip.Harness {
	return roundtrip.New(roundtrip.Config{
		Migrations: os.DirFS(cfg.MigrationsLocation),
		Provision: func(ctx context.Context, version string) (roundtrip.Target, error) {
			c, err := docker.Provision(ctx, docker.Options{Version: version, ConfigDir: cfg.ClickHouse.ConfigDir})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Connect: func(ctx context.Context, dsn string) (roundtrip.Session, error) {
			c, err := clickhouse.NewClient(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		TrackingDatabase: cfg.Tracking.Database,
		Concurrency:      concurrency,
		Logger:           slog.Default(),
	})
}

// roundtripCmd creates the roundtrip command which upgrades to head and
// downgrades to base on disposable ClickHouse servers.
//
// Example usage:
//
//	# Use the version from hermes.toml
//	hermes roundtrip
//
//	# Check several engine versions, two at a time
//	hermes roundtrip --clickhouse-version 24.8 --clickhouse-version 25.7 --concurrency 2
func roundtripCmd(p roundtripParams) *cli.Command {
	return &cli.Command{
		Name:  "roundtrip",
		Usage: "Check that the chain upgrades and downgrades cleanly on a disposable server",
		Description: `Start a throwaway ClickHouse container per engine version, migrate it
from base to head and back to base, and compare schema fingerprints taken
before and after. Requires Docker.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "clickhouse-version",
				Aliases: []string{"engine"},
				Usage:   "ClickHouse version to check (repeatable, default: clickhouse.version from the config)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "number of versions checked at once",
				Value: 2,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			versions := cmd.StringSlice("clickhouse-version")
			if len(versions) == 0 {
				versions = []string{p.Config.ClickHouse.Version}
			}

			reports, err := p.NewHarness(p.Config, int(cmd.Int("concurrency"))).RunAll(ctx, versions)
			if err != nil {
				return err
			}

			return printRoundTrips(cmd.Root().Writer, reports)
		},
	}
}

func printRoundTrips(w io.Writer, reports []*roundtrip.Report) error {
	failed := 0
	for _, r := range reports {
		if r.Passed() {
			fmt.Fprintf(w, "%s ClickHouse %s: up %d steps, down %d steps\n",
				success("✔"), r.Version, len(r.Up.Steps), len(r.Down.Steps))
		} else {
			failed++
			fmt.Fprintf(w, "%s ClickHouse %s\n", failure("✘"), r.Version)
			for _, f := range r.Failures {
				fmt.Fprintf(w, "    %s\n", f)
			}
		}

		if r.FingerprintErr != nil {
			fmt.Fprintf(w, "    %s\n", warning("schema fingerprint unavailable, divergence not checked: "+r.FingerprintErr.Error()))
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d round trips failed", failed, len(reports))
	}

	return nil
}
