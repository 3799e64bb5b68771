package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pseudomuto/hermes/pkg/runner"
	"github.com/urfave/cli/v3"
)

// status creates the status command showing the recorded revision, pending
// units and recent history.
//
// Example usage:
//
//	hermes status
//	hermes status --history 3
func status(p commandParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the applied revision and pending units",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "history",
				Usage: "number of recorded state changes to show",
				Value: 5,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withTarget(ctx, p, false, func(t *Target) error {
				st, err := t.Runner.Status(ctx)
				if err != nil {
					return err
				}

				printStatus(cmd.Root().Writer, st, int(cmd.Int("history")))
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, st *runner.Status, history int) {
	head := "<none>"
	if u := st.Chain.Head(); u != nil {
		head = u.Revision
	}

	fmt.Fprintf(w, "Chain:            %d units, head %s\n", st.Chain.Len(), emphasis(head))
	fmt.Fprintf(w, "Current revision: %s\n", emphasis(st.Current.Revision()))

	if !st.InChain {
		fmt.Fprintln(w, failure(fmt.Sprintf("The recorded revision %s is not part of the migration chain.", st.Current.CurrentRevision)))
		return
	}

	if len(st.Pending) == 0 {
		fmt.Fprintln(w, success("Up to date."))
	} else {
		fmt.Fprintf(w, "Pending:          %s\n", warning(fmt.Sprintf("%d units", len(st.Pending))))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, u := range st.Pending {
			fmt.Fprintf(tw, "  %s\t%s\n", u.Revision, u.Message)
		}
		_ = tw.Flush()
	}

	if history <= 0 || len(st.History) == 0 {
		return
	}

	fmt.Fprintln(w, "\nHistory:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range st.History {
		if i == history {
			break
		}
		fmt.Fprintf(tw, "  #%d\t%s\t%s\t%s\n", h.Sequence, h.Revision(), h.AppliedAt.UTC().Format(time.RFC3339), h.ToolVersion)
	}
	_ = tw.Flush()
}
