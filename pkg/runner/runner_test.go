package runner_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/chain"
	"github.com/pseudomuto/hermes/pkg/executor"
	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/pseudomuto/hermes/pkg/plan"
	"github.com/pseudomuto/hermes/pkg/runner"
	"github.com/pseudomuto/hermes/pkg/state"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockClickHouse struct {
	mu     sync.Mutex
	execs  []string
	failOn string
}

func (m *mockClickHouse) Exec(_ context.Context, query string, _ ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failOn != "" && strings.Contains(query, m.failOn) {
		return errors.Errorf("code: 60, message: unknown table %s", m.failOn)
	}

	m.execs = append(m.execs, query)
	return nil
}

type lockRecorder struct {
	steps int
	waits int
}

func (l *lockRecorder) StepStarted(plan.Step)                        {}
func (l *lockRecorder) StepFinished(plan.Step, time.Duration, error) { l.steps++ }
func (l *lockRecorder) ObserveLockWait(time.Duration)                { l.waits++ }

// releaseCountingStore counts releases and can fail them.
type releaseCountingStore struct {
	*state.MemoryStore
	releases   int
	releaseErr error
}

func (s *releaseCountingStore) Release(ctx context.Context, lease *state.Lease) error {
	s.releases++
	if s.releaseErr != nil {
		return s.releaseErr
	}
	return s.MemoryStore.Release(ctx, lease)
}

func unitFiles(rev, parent, up, down string) fstest.MapFS {
	info := "version = \"" + rev + "\"\nmessage = \"" + rev + " unit\"\ncreation_date = \"2024-05-01T00:00:00\"\n"
	if parent != "" {
		info += "previous_version = \"" + parent + "\"\n"
	}

	return fstest.MapFS{
		rev + "--unit/info.toml":     {Data: []byte(info)},
		rev + "--unit/upgrade.sql":   {Data: []byte(up)},
		rev + "--unit/downgrade.sql": {Data: []byte(down)},
	}
}

func merge(parts ...fstest.MapFS) fstest.MapFS {
	out := fstest.MapFS{}
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// abcFS is the chain A -> B -> C.
func abcFS() fstest.MapFS {
	return merge(
		unitFiles("A", "", "CREATE TABLE a (id UInt64) ENGINE = Memory;", "DROP TABLE a;"),
		unitFiles("B", "A", "CREATE TABLE b (id UInt64) ENGINE = Memory;\nINSERT INTO b VALUES (1);", "DROP TABLE b;"),
		unitFiles("C", "B", "CREATE TABLE c (id UInt64) ENGINE = Memory;", "DROP TABLE c;"),
	)
}

type fixture struct {
	ch      *mockClickHouse
	store   *releaseCountingStore
	metrics *lockRecorder
	runner  *runner.Runner
}

func newFixture(t *testing.T, migrations fstest.MapFS) *fixture {
	t.Helper()

	f := &fixture{
		ch:      &mockClickHouse{},
		store:   &releaseCountingStore{MemoryStore: state.NewMemoryStore(state.WithHolder("test"))},
		metrics: &lockRecorder{},
	}

	f.runner = runner.New(runner.Config{
		Migrations:  migrations,
		ClickHouse:  f.ch,
		Store:       f.store,
		LockTimeout: 100 * time.Millisecond,
		Logger:      discard,
		Observer:    f.metrics,
		ToolVersion: "test",
	})

	return f
}

func (f *fixture) current(t *testing.T) string {
	t.Helper()

	st, err := f.store.Read(context.Background())
	require.NoError(t, err)
	return st.CurrentRevision
}

func TestResolveAndApply_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())

	report, err := f.runner.ResolveAndApply(ctx, "head")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, report.Applied())
	require.Equal(t, "C", report.To)
	require.Equal(t, "C", f.current(t))

	report, err = f.runner.ResolveAndApply(ctx, "base")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, report.Applied())
	require.Equal(t, "", report.To)
	require.Equal(t, "", f.current(t))

	require.Equal(t, []string{
		"CREATE TABLE a (id UInt64) ENGINE = Memory",
		"CREATE TABLE b (id UInt64) ENGINE = Memory",
		"INSERT INTO b VALUES (1)",
		"CREATE TABLE c (id UInt64) ENGINE = Memory",
		"DROP TABLE c",
		"DROP TABLE b",
		"DROP TABLE a",
	}, f.ch.execs)

	require.Equal(t, 2, f.store.releases)
	require.Equal(t, 2, f.metrics.waits)
	require.Equal(t, 6, f.metrics.steps)
}

func TestResolveAndApply_SameTargetIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())

	_, err := f.runner.ResolveAndApply(ctx, "B")
	require.NoError(t, err)
	execs := len(f.ch.execs)

	report, err := f.runner.ResolveAndApply(ctx, "B")
	require.NoError(t, err)
	require.Empty(t, report.Steps)
	require.Equal(t, "B", report.From)
	require.Equal(t, "B", report.To)
	require.Len(t, f.ch.execs, execs)
	require.Equal(t, 2, f.store.releases)
}

func TestResolveAndApply_Resume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())
	f.ch.failOn = "INSERT INTO b"

	report, err := f.runner.ResolveAndApply(ctx, "head")

	var pf *executor.PartialFailure
	require.ErrorAs(t, err, &pf)
	require.Equal(t, "B", pf.Failed.Unit.Revision)
	require.Equal(t, 1, pf.Statement)
	require.Equal(t, "A", pf.Current)
	require.Equal(t, []string{"A"}, report.Applied())
	require.Equal(t, "A", f.current(t))
	require.Equal(t, 1, f.store.releases)

	p, err := f.runner.Plan(ctx, "head")
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, p.Revisions())

	f.ch.failOn = ""
	report, err = f.runner.ResolveAndApply(ctx, "head")
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, report.Applied())
	require.Equal(t, "C", f.current(t))
}

func TestResolveAndApply_Direction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())

	_, err := f.runner.ResolveAndApply(ctx, "B", runner.WithDirection(migrator.Up))
	require.NoError(t, err)

	_, err = f.runner.ResolveAndApply(ctx, "A", runner.WithDirection(migrator.Up))
	var dirErr *runner.DirectionError
	require.ErrorAs(t, err, &dirErr)
	require.Equal(t, migrator.Up, dirErr.Want)
	require.Equal(t, migrator.Down, dirErr.Plan.Direction())
	require.Contains(t, err.Error(), "from B to A")
	require.Equal(t, "B", f.current(t))

	_, err = f.runner.ResolveAndApply(ctx, "head", runner.WithDirection(migrator.Down))
	require.ErrorAs(t, err, &dirErr)

	report, err := f.runner.ResolveAndApply(ctx, "B", runner.WithDirection(migrator.Down))
	require.NoError(t, err)
	require.Empty(t, report.Steps)

	report, err = f.runner.ResolveAndApply(ctx, "base", runner.WithDirection(migrator.Down))
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, report.Applied())
	require.Equal(t, 5, f.store.releases)
}

func TestResolveAndApply_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("load error takes no lock", func(t *testing.T) {
		f := newFixture(t, fstest.MapFS{"A/upgrade.sql": {Data: []byte("SELECT 1")}})

		_, err := f.runner.ResolveAndApply(ctx, "head")
		var loadErr *migrator.LoadError
		require.ErrorAs(t, err, &loadErr)
		require.Zero(t, f.store.releases)
		require.Zero(t, f.metrics.waits)
	})

	t.Run("empty script applies nothing", func(t *testing.T) {
		f := newFixture(t, merge(
			unitFiles("A", "", "CREATE TABLE a (id UInt64) ENGINE = Memory;", "DROP TABLE a;"),
			unitFiles("B", "A", "", ""),
		))

		_, err := f.runner.ResolveAndApply(ctx, "head")
		var loadErr *migrator.LoadError
		require.ErrorAs(t, err, &loadErr)
		require.Equal(t, "B--unit/upgrade.sql", loadErr.Path)
		require.Zero(t, f.store.releases)
		require.Empty(t, f.ch.execs)
		require.Equal(t, "", f.current(t))
	})

	t.Run("branching chain takes no lock", func(t *testing.T) {
		f := newFixture(t, merge(
			unitFiles("A", "", "SELECT 1", "SELECT 1"),
			unitFiles("B", "A", "SELECT 1", "SELECT 1"),
			unitFiles("B2", "A", "SELECT 1", "SELECT 1"),
		))

		_, err := f.runner.ResolveAndApply(ctx, "head")
		var resErr *chain.ResolutionError
		require.ErrorAs(t, err, &resErr)
		require.Equal(t, chain.KindMultipleHeads, resErr.Kind)
		require.Zero(t, f.store.releases)
		require.Empty(t, f.ch.execs)
	})

	t.Run("unknown revision", func(t *testing.T) {
		f := newFixture(t, abcFS())

		_, err := f.runner.ResolveAndApply(ctx, "Z")
		var unknown *plan.UnknownRevisionError
		require.ErrorAs(t, err, &unknown)
		require.Equal(t, "Z", unknown.Revision)
		require.Equal(t, 1, f.store.releases)
		require.Empty(t, f.ch.execs)
	})

	t.Run("state not in chain", func(t *testing.T) {
		f := newFixture(t, abcFS())

		lease, err := f.store.AcquireLock(ctx, 0)
		require.NoError(t, err)
		require.NoError(t, f.store.Write(ctx, lease, state.AppliedState{CurrentRevision: "X"}))
		require.NoError(t, f.store.MemoryStore.Release(ctx, lease))

		_, err = f.runner.ResolveAndApply(ctx, "head")
		var invalid *plan.InvalidTargetError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, "X", invalid.Current)
		require.Empty(t, f.ch.execs)
	})

	t.Run("lock timeout", func(t *testing.T) {
		f := newFixture(t, abcFS())

		lease, err := f.store.AcquireLock(ctx, 0)
		require.NoError(t, err)
		defer func() { _ = f.store.MemoryStore.Release(ctx, lease) }()

		_, err = f.runner.ResolveAndApply(ctx, "head")
		require.ErrorIs(t, err, state.ErrLockTimeout)
		require.Empty(t, f.ch.execs)
		require.Equal(t, "", f.current(t))
		require.Equal(t, 1, f.metrics.waits)
	})
}

func TestResolveAndApply_ReleaseFailureIsLogged(t *testing.T) {
	f := newFixture(t, abcFS())
	f.store.releaseErr = errors.New("connection reset")

	report, err := f.runner.ResolveAndApply(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, report.Applied())
	require.Equal(t, 1, f.store.releases)
}

func TestResolveAndApply_ReleasesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, abcFS())

	cancel()

	_, err := f.runner.ResolveAndApply(ctx, "head")
	require.Error(t, err)
	require.Empty(t, f.ch.execs)
	require.Equal(t, "", f.current(t))
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())

	p, err := f.runner.Plan(ctx, "head")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, p.Revisions())
	require.Empty(t, f.ch.execs)
	require.Zero(t, f.metrics.waits)

	_, err = f.runner.ResolveAndApply(ctx, "C")
	require.NoError(t, err)

	p, err = f.runner.Plan(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B"}, p.Revisions())
	require.Equal(t, migrator.Down, p.Direction())

	p, err = f.runner.Plan(ctx, "C")
	require.NoError(t, err)
	require.True(t, p.Empty())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, abcFS())

	st, err := f.runner.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.InChain)
	require.True(t, st.Current.IsBase())
	require.Len(t, st.Pending, 3)
	require.Empty(t, st.History)
	require.Equal(t, 3, st.Chain.Len())

	_, err = f.runner.ResolveAndApply(ctx, "B")
	require.NoError(t, err)

	st, err = f.runner.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", st.Current.CurrentRevision)
	require.Len(t, st.Pending, 1)
	require.Equal(t, "C", st.Pending[0].Revision)
	require.Len(t, st.History, 2)
	require.Equal(t, "B", st.History[0].CurrentRevision)
	require.Equal(t, "test", st.History[0].ToolVersion)

	lease, err := f.store.AcquireLock(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, f.store.Write(ctx, lease, state.AppliedState{CurrentRevision: "gone"}))

	st, err = f.runner.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.InChain)
	require.Empty(t, st.Pending)
}
