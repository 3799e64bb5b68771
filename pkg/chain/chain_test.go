package chain_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/chain"
	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/stretchr/testify/require"
)

func unit(rev, parent string) *migrator.Unit {
	return &migrator.Unit{Revision: rev, Parent: parent, Message: "unit " + rev}
}

func linearUnits(n int) []*migrator.Unit {
	units := make([]*migrator.Unit, n)
	parent := ""
	for i := range n {
		rev := fmt.Sprintf("r%03d", i)
		units[i] = unit(rev, parent)
		parent = rev
	}
	return units
}

func TestResolve_Linear(t *testing.T) {
	c, err := chain.Resolve([]*migrator.Unit{
		unit("C", "B"),
		unit("A", ""),
		unit("B", "A"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	require.Equal(t, []string{"A", "B", "C"}, c.Revisions())
	require.Equal(t, "A", c.Root().Revision)
	require.Equal(t, "C", c.Head().Revision)

	pos, ok := c.Position("B")
	require.True(t, ok)
	require.Equal(t, 1, pos)
	require.Equal(t, "B", c.At(1).Revision)
	require.Equal(t, "B", c.Get("B").Revision)
	require.True(t, c.Contains("C"))
	require.False(t, c.Contains("Z"))
	require.Nil(t, c.Get("Z"))
}

func TestResolve_ShuffledChainsKeepParentOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, n := range []int{1, 2, 5, 17, 64} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			units := linearUnits(n)
			rng.Shuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })

			c, err := chain.Resolve(units)
			require.NoError(t, err)
			require.Equal(t, n, c.Len())
			require.True(t, c.Root().IsRoot())

			for i := 1; i < c.Len(); i++ {
				require.Equal(t, c.At(i-1).Revision, c.At(i).Parent)
			}
		})
	}
}

func TestResolve_Empty(t *testing.T) {
	c, err := chain.Resolve(nil)
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())
	require.Nil(t, c.Root())
	require.Nil(t, c.Head())
	require.Empty(t, c.Revisions())
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		units     []*migrator.Unit
		kind      chain.ResolutionKind
		revisions []string
	}{
		{
			name:      "branch at root",
			units:     []*migrator.Unit{unit("A", ""), unit("B", "A"), unit("B2", "A")},
			kind:      chain.KindMultipleHeads,
			revisions: []string{"A", "B", "B2"},
		},
		{
			name: "branch deep in the chain",
			units: []*migrator.Unit{
				unit("A", ""), unit("B", "A"), unit("C", "B"), unit("D", "C"), unit("D2", "C"), unit("E", "D"),
			},
			kind:      chain.KindMultipleHeads,
			revisions: []string{"C", "D", "D2"},
		},
		{
			name:      "dangling parent",
			units:     []*migrator.Unit{unit("A", ""), unit("B", "X")},
			kind:      chain.KindDanglingParent,
			revisions: []string{"B", "X"},
		},
		{
			name:      "multiple roots",
			units:     []*migrator.Unit{unit("B", ""), unit("A", ""), unit("C", "A")},
			kind:      chain.KindMultipleRoots,
			revisions: []string{"A", "B"},
		},
		{
			name:      "cycle detached from root",
			units:     []*migrator.Unit{unit("A", ""), unit("B", "C"), unit("C", "B")},
			kind:      chain.KindCycle,
			revisions: []string{"B", "C"},
		},
		{
			name:      "cycle without any root",
			units:     []*migrator.Unit{unit("A", "B"), unit("B", "A")},
			kind:      chain.KindCycle,
			revisions: []string{"A", "B"},
		},
		{
			name:      "self parent",
			units:     []*migrator.Unit{unit("A", ""), unit("B", "B")},
			kind:      chain.KindCycle,
			revisions: []string{"B"},
		},
		{
			name:      "duplicate revision",
			units:     []*migrator.Unit{unit("A", ""), unit("A", "")},
			kind:      chain.KindDuplicateRevision,
			revisions: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := chain.Resolve(tt.units)
			require.Error(t, err)
			require.Nil(t, c)

			var resErr *chain.ResolutionError
			require.True(t, errors.As(err, &resErr))
			require.Equal(t, tt.kind, resErr.Kind)
			require.Equal(t, tt.revisions, resErr.Revisions)
			require.Contains(t, err.Error(), string(tt.kind))
		})
	}
}

func TestResolve_AnyParentWithTwoChildrenFails(t *testing.T) {
	units := linearUnits(10)

	for i := range len(units) - 1 {
		t.Run(units[i].Revision, func(t *testing.T) {
			withBranch := append(append([]*migrator.Unit{}, units...), unit("extra", units[i].Revision))

			_, err := chain.Resolve(withBranch)
			require.Error(t, err)

			var resErr *chain.ResolutionError
			require.True(t, errors.As(err, &resErr))
			require.Equal(t, chain.KindMultipleHeads, resErr.Kind)
			require.Equal(t, units[i].Revision, resErr.Revisions[0])
		})
	}
}
