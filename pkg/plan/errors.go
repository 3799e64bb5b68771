package plan

import "fmt"

type (
	// UnknownRevisionError is returned when the requested target is not part of the chain.
	UnknownRevisionError struct {
		Revision string
	}

	// InvalidTargetError is returned when the recorded current revision is not part
	// of the chain, meaning the target database and the loaded units disagree.
	InvalidTargetError struct {
		Current string
		Target  string
	}
)

func (e *UnknownRevisionError) Error() string {
	return fmt.Sprintf("unknown revision %q", e.Revision)
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("cannot plan to %s: current revision %q is not part of the migration chain", e.Target, e.Current)
}
