package plan

import (
	"strings"

	"github.com/pseudomuto/hermes/pkg/consts"
)

type (
	// Target is the destination of a plan: head, base or an explicit revision.
	Target struct {
		kind     targetKind
		revision string
	}

	targetKind int
)

const (
	targetRevision targetKind = iota
	targetHead
	targetBase
)

var (
	// Head targets the last unit of the chain.
	Head = Target{kind: targetHead}

	// Base targets the state before the first unit.
	Base = Target{kind: targetBase}
)

// ParseTarget interprets "head" and "base" (case-insensitive) symbolically and
// anything else as a revision.
func ParseTarget(s string) Target {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case consts.TargetHead:
		return Head
	case consts.TargetBase:
		return Base
	}
	return Revision(s)
}

// Revision targets an explicit revision.
func Revision(rev string) Target {
	return Target{kind: targetRevision, revision: rev}
}

// IsHead reports whether the target is the symbolic head.
func (t Target) IsHead() bool { return t.kind == targetHead }

// IsBase reports whether the target is base, either symbolically or as an empty revision.
func (t Target) IsBase() bool {
	return t.kind == targetBase || (t.kind == targetRevision && t.revision == "")
}

func (t Target) String() string {
	switch {
	case t.IsHead():
		return consts.TargetHead
	case t.IsBase():
		return consts.TargetBase
	}
	return t.revision
}
