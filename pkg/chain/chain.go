// Package chain orders migration units into a single linear history.
//
// Every invocation rebuilds the chain from the loaded units; nothing about the
// ordering is persisted. Resolution fails fast on any structural defect so that
// no database is touched when the history is ambiguous.
package chain

import (
	"slices"

	"github.com/pseudomuto/hermes/pkg/migrator"
)

// Chain is an ordered, root to head sequence of migration units.
//
// Units are stored in a slice and indexed by revision, so positional lookups and
// revision lookups are both constant time.
type Chain struct {
	units []*migrator.Unit
	index map[string]int
}

// Resolve orders units into a chain by following parent pointers from the root.
//
// The following defects are reported as a *ResolutionError:
//   - two units with the same revision
//   - a parent revision that is not part of the set
//   - any unit with two or more children, wherever it sits in the set
//   - zero roots (on a non-empty set) or more than one root
//   - units that cannot be reached from the root, which can only happen through a cycle
//
// An empty set resolves to an empty chain.
//
// Example usage:
//
//	c, err := chain.Resolve(units)
//	if err != nil {
//		var resErr *chain.ResolutionError
//		if errors.As(err, &resErr) && resErr.Kind == chain.KindMultipleHeads {
//			log.Fatalf("history branches at %v", resErr.Revisions)
//		}
//		return err
//	}
//
//	fmt.Println("head is", c.Head().Revision)
func Resolve(units []*migrator.Unit) (*Chain, error) {
	byRev := make(map[string]*migrator.Unit, len(units))
	for _, u := range units {
		if _, ok := byRev[u.Revision]; ok {
			return nil, &ResolutionError{Kind: KindDuplicateRevision, Revisions: []string{u.Revision}}
		}
		byRev[u.Revision] = u
	}

	children := make(map[string][]string, len(units))
	var roots []string

	for _, u := range units {
		if u.IsRoot() {
			roots = append(roots, u.Revision)
			continue
		}

		if u.Parent == u.Revision {
			return nil, &ResolutionError{
				Kind:      KindCycle,
				Revisions: []string{u.Revision},
				Detail:    "unit is its own parent",
			}
		}

		if _, ok := byRev[u.Parent]; !ok {
			return nil, &ResolutionError{
				Kind:      KindDanglingParent,
				Revisions: []string{u.Revision, u.Parent},
				Detail:    "revision " + u.Revision + " references unknown parent " + u.Parent,
			}
		}

		children[u.Parent] = append(children[u.Parent], u.Revision)
	}

	if branch := firstBranch(children); branch != "" {
		kids := slices.Sorted(slices.Values(children[branch]))
		return nil, &ResolutionError{
			Kind:      KindMultipleHeads,
			Revisions: append([]string{branch}, kids...),
			Detail:    "revision " + branch + " has more than one child",
		}
	}

	if len(units) == 0 {
		return &Chain{index: map[string]int{}}, nil
	}

	switch len(roots) {
	case 0:
		return nil, &ResolutionError{
			Kind:      KindCycle,
			Revisions: sortedKeys(byRev),
			Detail:    "no root unit",
		}
	case 1:
	default:
		slices.Sort(roots)
		return nil, &ResolutionError{Kind: KindMultipleRoots, Revisions: roots}
	}

	c := &Chain{
		units: make([]*migrator.Unit, 0, len(units)),
		index: make(map[string]int, len(units)),
	}

	for rev := roots[0]; ; {
		if _, seen := c.index[rev]; seen {
			return nil, &ResolutionError{Kind: KindCycle, Revisions: []string{rev}}
		}

		c.index[rev] = len(c.units)
		c.units = append(c.units, byRev[rev])

		next := children[rev]
		if len(next) == 0 {
			break
		}
		rev = next[0]
	}

	if len(c.units) != len(units) {
		var unreached []string
		for rev := range byRev {
			if _, ok := c.index[rev]; !ok {
				unreached = append(unreached, rev)
			}
		}
		slices.Sort(unreached)

		return nil, &ResolutionError{
			Kind:      KindCycle,
			Revisions: unreached,
			Detail:    "units unreachable from root " + roots[0],
		}
	}

	return c, nil
}

// Len returns the number of units in the chain.
func (c *Chain) Len() int {
	return len(c.units)
}

// Units returns the units in root to head order. The slice must not be modified.
func (c *Chain) Units() []*migrator.Unit {
	return c.units
}

// At returns the unit at position i, where 0 is the root.
func (c *Chain) At(i int) *migrator.Unit {
	return c.units[i]
}

// Root returns the first unit, or nil for an empty chain.
func (c *Chain) Root() *migrator.Unit {
	if len(c.units) == 0 {
		return nil
	}
	return c.units[0]
}

// Head returns the last unit, or nil for an empty chain.
func (c *Chain) Head() *migrator.Unit {
	if len(c.units) == 0 {
		return nil
	}
	return c.units[len(c.units)-1]
}

// Position returns the index of rev in the chain.
func (c *Chain) Position(rev string) (int, bool) {
	i, ok := c.index[rev]
	return i, ok
}

// Get returns the unit with the given revision, or nil.
func (c *Chain) Get(rev string) *migrator.Unit {
	if i, ok := c.index[rev]; ok {
		return c.units[i]
	}
	return nil
}

// Contains reports whether rev is part of the chain.
func (c *Chain) Contains(rev string) bool {
	_, ok := c.index[rev]
	return ok
}

// Revisions returns every revision in root to head order.
func (c *Chain) Revisions() []string {
	revs := make([]string, len(c.units))
	for i, u := range c.units {
		revs[i] = u.Revision
	}
	return revs
}

func firstBranch(children map[string][]string) string {
	var branches []string
	for parent, kids := range children {
		if len(kids) > 1 {
			branches = append(branches, parent)
		}
	}

	if len(branches) == 0 {
		return ""
	}

	slices.Sort(branches)
	return branches[0]
}

func sortedKeys(m map[string]*migrator.Unit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
