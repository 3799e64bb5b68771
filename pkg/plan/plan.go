// Package plan computes the ordered steps that move a target database from its
// current revision to a requested one.
package plan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pseudomuto/hermes/pkg/chain"
	"github.com/pseudomuto/hermes/pkg/migrator"
)

type (
	// Plan is an ordered list of steps from one revision to another. From and To
	// use "" for base. A plan with no steps is a valid no-op.
	Plan struct {
		From  string
		To    string
		Steps []Step
	}

	// Step applies one script of one unit.
	Step struct {
		Unit      *migrator.Unit
		Direction migrator.Direction
	}
)

// Compute returns the plan that moves current to target along c.
//
// Moving forward yields an up step for every unit after current through target,
// oldest first. Moving backward yields a down step for every unit after target
// through current, newest first. When current already equals target the plan is
// empty.
//
// A target that is not in the chain fails with *UnknownRevisionError. A current
// revision that is not in the chain fails with *InvalidTargetError.
//
// Example usage:
//
//	p, err := plan.Compute(c, state.CurrentRevision, plan.ParseTarget("head"))
//	if err != nil {
//		return err
//	}
//
//	for _, step := range p.Steps {
//		fmt.Println(step.Direction, step.Unit.Revision)
//	}
func Compute(c *chain.Chain, current string, target Target) (*Plan, error) {
	// Positions are shifted by one so that base is position 0.
	to, toRev, err := resolveTarget(c, target)
	if err != nil {
		return nil, err
	}

	from := 0
	if current != "" {
		i, ok := c.Position(current)
		if !ok {
			return nil, &InvalidTargetError{Current: current, Target: target.String()}
		}
		from = i + 1
	}

	p := &Plan{From: current, To: toRev}

	switch {
	case to > from:
		for i := from; i < to; i++ {
			p.Steps = append(p.Steps, Step{Unit: c.At(i), Direction: migrator.Up})
		}
	case to < from:
		for i := from - 1; i >= to; i-- {
			p.Steps = append(p.Steps, Step{Unit: c.At(i), Direction: migrator.Down})
		}
	}

	return p, nil
}

func resolveTarget(c *chain.Chain, target Target) (int, string, error) {
	switch {
	case target.IsBase():
		return 0, "", nil
	case target.IsHead():
		if head := c.Head(); head != nil {
			return c.Len(), head.Revision, nil
		}
		return 0, "", nil
	}

	i, ok := c.Position(target.revision)
	if !ok {
		return 0, "", &UnknownRevisionError{Revision: target.revision}
	}
	return i + 1, target.revision, nil
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Direction returns the direction of the plan's steps, or "" for an empty plan.
func (p *Plan) Direction() migrator.Direction {
	if p.Empty() {
		return ""
	}
	return p.Steps[0].Direction
}

// Revisions returns the revisions of the units touched by the plan, in step order.
func (p *Plan) Revisions() []string {
	revs := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		revs[i] = s.Unit.Revision
	}
	return revs
}

// WriteTo renders a human readable summary of the plan.
func (p *Plan) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "plan: %s -> %s (%s)\n", displayRevision(p.From), displayRevision(p.To), pluralize(len(p.Steps), "step"))

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, s := range p.Steps {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Direction, s.Unit.Revision, s.Unit.Message, pluralize(len(s.Statements()), "statement"))
	}
	if err := tw.Flush(); err != nil {
		return 0, err
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Statements returns the statements executed by the step.
func (s Step) Statements() []string {
	return s.Unit.Statements(s.Direction)
}

// Result returns the revision that is current once the step has been applied:
// the unit itself for an up step, its parent for a down step.
func (s Step) Result() string {
	if s.Direction == migrator.Down {
		return s.Unit.Parent
	}
	return s.Unit.Revision
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s", s.Direction, s.Unit.Revision)
}

func displayRevision(rev string) string {
	if rev == "" {
		return "<base>"
	}
	return rev
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
