package roundtrip

import (
	"fmt"
	"strings"

	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/executor"
	"github.com/pseudomuto/hermes/pkg/migrator"
)

// FailureKind classifies a round-trip failure.
type FailureKind string

const (
	// ScriptFailure means a pass did not complete or did not end where it should.
	ScriptFailure FailureKind = "script-failure"

	// RoundTripDivergence means the schema after downgrading differs from
	// the schema before upgrading.
	RoundTripDivergence FailureKind = "roundtrip-divergence"
)

type (
	// Report is the outcome of one round trip.
	Report struct {
		// Version is the engine version of the disposable server.
		Version string

		// Up and Down are the execution reports of each pass. Down is nil when
		// the upgrade failed.
		Up   *executor.Report
		Down *executor.Report

		FingerprintBefore *clickhouse.Fingerprint
		FingerprintAfter  *clickhouse.Fingerprint

		// FingerprintErr is set when a fingerprint could not be taken, in which
		// case divergence was not checked.
		FingerprintErr error

		Failures []Failure
	}

	// Failure describes one problem found during a round trip.
	Failure struct {
		Kind FailureKind

		// Direction is the failing pass. It is empty for divergence.
		Direction migrator.Direction

		Err error
	}

	// DivergenceError lists the schema objects that differ after a round trip.
	DivergenceError struct {
		Diff []string
	}
)

// Passed reports whether the round trip found no failures.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Failed returns the failures of the given kind.
func (r *Report) Failed(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) fail(kind FailureKind, d migrator.Direction, err error) {
	r.Failures = append(r.Failures, Failure{Kind: kind, Direction: d, Err: err})
}

func (f Failure) String() string {
	if f.Direction == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s (%s): %v", f.Kind, f.Direction, f.Err)
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("schema differs after downgrade:\n  %s", strings.Join(e.Diff, "\n  "))
}
