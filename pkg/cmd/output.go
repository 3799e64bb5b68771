package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pseudomuto/hermes/pkg/executor"
)

var (
	success  = color.New(color.FgGreen).SprintFunc()
	failure  = color.New(color.FgRed).SprintFunc()
	warning  = color.New(color.FgYellow).SprintFunc()
	emphasis = color.New(color.Bold).SprintFunc()
)

func displayRevision(rev string) string {
	if rev == "" {
		return "<base>"
	}
	return rev
}

func printReport(w io.Writer, report *executor.Report) {
	if report == nil {
		return
	}

	if len(report.Steps) == 0 {
		fmt.Fprintf(w, "Already at %s, nothing to do.\n", emphasis(displayRevision(report.To)))
		return
	}

	printSteps(w, report.Steps)
	fmt.Fprintf(w, "\n%s %s -> %s (%d steps in %v)\n",
		success("Migrated"),
		displayRevision(report.From),
		emphasis(displayRevision(report.To)),
		len(report.Steps),
		report.Duration(),
	)
}

func printSteps(w io.Writer, steps []executor.StepResult) {
	for _, s := range steps {
		fmt.Fprintf(w, "  %s %s %s (%d statements, %v)\n",
			success("✔"),
			s.Step.Direction,
			s.Step.Unit.Revision,
			s.Statements,
			s.Duration,
		)
	}
}

func printFailure(w io.Writer, pf *executor.PartialFailure) {
	printSteps(w, pf.Completed)

	where := "before its first statement"
	if pf.Statement >= 0 {
		where = fmt.Sprintf("at statement %d", pf.Statement+1)
	}
	if pf.StateWriteFailed {
		where = "while recording its result"
	}

	fmt.Fprintf(w, "  %s %s %s failed %s\n", failure("✘"), pf.Failed.Direction, pf.Failed.Unit.Revision, where)
	fmt.Fprintf(w, "\nCurrent revision is %s. Nothing was rolled back; fix the script and re-run to resume.\n",
		emphasis(displayRevision(pf.Current)))

	if pf.StateWriteFailed {
		fmt.Fprintln(w, warning("The script of the failed step completed, the database may be one step ahead of the recorded revision."))
	}
}
