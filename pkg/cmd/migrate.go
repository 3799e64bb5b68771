package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/executor"
	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/pseudomuto/hermes/pkg/runner"
	"github.com/urfave/cli/v3"
)

// migrate creates the migrate command which moves the database to any target,
// up or down.
//
// Example usage:
//
//	# Apply every unit
//	hermes migrate head
//
//	# Move to a specific revision, upgrading or downgrading as needed
//	hermes migrate 20240301_add_events
//
//	# Undo everything
//	hermes migrate base
func migrate(p commandParams) *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Aliases:   []string{"apply"},
		Usage:     "Move the database to a target revision",
		ArgsUsage: "<head|base|revision>",
		Description: `Move the database to the target revision.

The plan is computed under the migration lock from the revision recorded in
the database. Each step's script runs statement by statement and the recorded
revision advances after every step. If a step fails, execution stops, nothing
is rolled back, and re-running the same command resumes from the failed step.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target, err := targetArg(cmd, "")
			if err != nil {
				return err
			}
			return runApply(ctx, cmd, p, target)
		},
	}
}

// upgrade creates the upgrade command which only ever moves forward.
//
// Example usage:
//
//	hermes upgrade
//	hermes upgrade 20240301_add_events
func upgrade(p commandParams) *cli.Command {
	return &cli.Command{
		Name:      "upgrade",
		Usage:     "Apply units up to a target revision (default: head)",
		ArgsUsage: "[head|revision]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target, err := targetArg(cmd, consts.TargetHead)
			if err != nil {
				return err
			}
			return runApply(ctx, cmd, p, target, runner.WithDirection(migrator.Up))
		},
	}
}

// downgrade creates the downgrade command which only ever moves backward.
//
// Example usage:
//
//	hermes downgrade base
//	hermes downgrade 20240101_create_users
func downgrade(p commandParams) *cli.Command {
	return &cli.Command{
		Name:      "downgrade",
		Usage:     "Revert units down to a target revision",
		ArgsUsage: "<base|revision>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target, err := targetArg(cmd, "")
			if err != nil {
				return err
			}
			return runApply(ctx, cmd, p, target, runner.WithDirection(migrator.Down))
		},
	}
}

func runApply(ctx context.Context, cmd *cli.Command, p commandParams, target string, opts ...runner.Option) error {
	return withTarget(ctx, p, true, func(t *Target) error {
		report, err := t.Runner.ResolveAndApply(ctx, target, opts...)

		w := cmd.Root().Writer

		var pf *executor.PartialFailure
		if errors.As(err, &pf) {
			printFailure(w, pf)
			return err
		}

		if err != nil {
			return err
		}

		printReport(w, report)
		return nil
	})
}
