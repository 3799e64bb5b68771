package migrator

import (
	"fmt"
	"time"
)

type (
	// Unit is a single reversible migration step.
	//
	// Units are linked through Parent into a chain. A unit with an empty Parent is
	// the root of the chain. Units are immutable once loaded.
	Unit struct {
		// Revision uniquely identifies the unit within a loaded set.
		Revision string

		// Parent is the revision this unit follows, or "" for the root.
		Parent string

		// Message is the human readable description of the change.
		Message string

		// CreatedAt is the authoring timestamp from the descriptor.
		CreatedAt time.Time

		// Dir is the directory the unit was loaded from.
		Dir string

		// Up and Down hold the raw script text.
		Up   string
		Down string

		// UpStatements and DownStatements are the scripts split into executable statements.
		UpStatements   []string
		DownStatements []string
	}

	// Direction indicates which script of a unit is applied.
	Direction string
)

const (
	// Up applies a unit's upgrade script.
	Up Direction = "up"

	// Down applies a unit's downgrade script.
	Down Direction = "down"
)

// IsRoot reports whether the unit starts the chain.
func (u *Unit) IsRoot() bool {
	return u.Parent == ""
}

// Script returns the raw script text for the given direction.
func (u *Unit) Script(d Direction) string {
	if d == Down {
		return u.Down
	}
	return u.Up
}

// Statements returns the executable statements for the given direction.
func (u *Unit) Statements(d Direction) []string {
	if d == Down {
		return u.DownStatements
	}
	return u.UpStatements
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s (%s)", u.Revision, u.Message)
}
