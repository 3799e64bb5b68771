package chain

import (
	"fmt"
	"strings"
)

type (
	// ResolutionError reports a structural defect in a set of migration units.
	// No chain is produced when one is returned.
	ResolutionError struct {
		Kind      ResolutionKind
		Revisions []string
		Detail    string
	}

	// ResolutionKind classifies a ResolutionError.
	ResolutionKind string
)

const (
	// KindDuplicateRevision means two units share a revision.
	KindDuplicateRevision ResolutionKind = "duplicate-revision"

	// KindDanglingParent means a unit names a parent that is not in the set.
	KindDanglingParent ResolutionKind = "dangling-parent"

	// KindMultipleHeads means a unit is the parent of more than one unit.
	KindMultipleHeads ResolutionKind = "multiple-heads"

	// KindMultipleRoots means more than one unit has no parent.
	KindMultipleRoots ResolutionKind = "multiple-roots"

	// KindCycle means units reference each other in a loop and never reach a root.
	KindCycle ResolutionKind = "cycle"
)

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("invalid migration chain (%s)", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Revisions) > 0 {
		msg += " [" + strings.Join(e.Revisions, ", ") + "]"
	}
	return msg
}
