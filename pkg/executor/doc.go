// Package executor applies a computed plan to a target database one step at a time.
//
// For every step the executor renews the lease, runs each statement of the
// step's script and then immediately records the step's resulting revision in
// the applied-state store. State is never batched, so when execution stops the
// recorded revision is exactly the last step that completed and simply running
// the same command again resumes from there.
//
// Failures are not rolled back or retried. The executor stops at the failing
// step and returns a *PartialFailure naming the completed steps, the failed
// step and the underlying error.
//
// Statements run on a context that ignores cancellation so that a script is
// never abandoned half way by a signal. Cancellation is honoured between steps.
//
// Example usage:
//
//	exec := executor.New(executor.Config{
//		ClickHouse:  client,
//		Store:       store,
//		ToolVersion: "1.0.0",
//	})
//
//	report, err := exec.Apply(ctx, p, lease)
//	if err != nil {
//		var partial *executor.PartialFailure
//		if errors.As(err, &partial) {
//			fmt.Printf("stopped at %s, database is at %s\n", partial.Failed, partial.Current)
//		}
//		return err
//	}
//
//	fmt.Printf("now at %s after %d steps\n", report.To, len(report.Steps))
package executor
