package runner

import (
	"fmt"

	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/pseudomuto/hermes/pkg/plan"
)

// DirectionError is returned when a run restricted to one direction would
// move the other way. Nothing is executed.
type DirectionError struct {
	Want migrator.Direction
	Plan *plan.Plan
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("refusing to move %s: going from %s to %s is a %s migration",
		e.Want, revision(e.Plan.From), revision(e.Plan.To), e.Plan.Direction())
}

func revision(rev string) string {
	if rev == "" {
		return "<base>"
	}
	return rev
}
