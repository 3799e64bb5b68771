package executor

import (
	"fmt"

	"github.com/pseudomuto/hermes/pkg/plan"
)

// PartialFailure is returned when execution stops part way through a plan.
//
// Every step in Completed has been applied and recorded, and Current is the
// revision recorded in the store. Nothing is rolled back. When StateWriteFailed
// is set the failed step's script ran to completion but its result could not be
// recorded, so the target may be ahead of Current by that one step.
type PartialFailure struct {
	Completed []StepResult
	Failed    plan.Step

	// Statement is the zero based index of the failing statement, or -1 when
	// the step failed before running any statement.
	Statement int

	// Current is the recorded revision ("" for base).
	Current string

	StateWriteFailed bool

	Err error
}

func (e *PartialFailure) Error() string {
	current := e.Current
	if current == "" {
		current = "<base>"
	}

	return fmt.Sprintf("migration stopped at %s after %d completed step(s), current revision is %s: %v",
		e.Failed, len(e.Completed), current, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
