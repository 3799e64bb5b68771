package cmd

import (
	"context"

	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/urfave/cli/v3"
)

// planCmd creates the plan command which prints what migrate would do
// without taking the lock or executing anything.
//
// Example usage:
//
//	hermes plan
//	hermes plan base
func planCmd(p commandParams) *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Show the steps needed to reach a target revision (default: head)",
		ArgsUsage: "[head|base|revision]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target, err := targetArg(cmd, consts.TargetHead)
			if err != nil {
				return err
			}

			return withTarget(ctx, p, false, func(t *Target) error {
				pl, err := t.Runner.Plan(ctx, target)
				if err != nil {
					return err
				}

				_, err = pl.WriteTo(cmd.Root().Writer)
				return err
			})
		},
	}
}
