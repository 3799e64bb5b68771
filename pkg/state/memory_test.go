package state_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/state"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()

	current, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, current.IsBase())
	require.Equal(t, "<base>", current.Revision())

	lease, err := store.AcquireLock(ctx, time.Second)
	require.NoError(t, err)
	defer func() { _ = store.Release(ctx, lease) }()

	require.NoError(t, store.Write(ctx, lease, state.AppliedState{CurrentRevision: "a1", ToolVersion: "test"}))
	require.NoError(t, store.Write(ctx, lease, state.AppliedState{CurrentRevision: "b2", ToolVersion: "test"}))

	current, err = store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "b2", current.CurrentRevision)
	require.Equal(t, uint64(2), current.Sequence)
	require.Equal(t, lease.Token, current.LeaseToken)
	require.Equal(t, "test", current.ToolVersion)

	history, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "b2", history[0].CurrentRevision)
	require.Equal(t, "a1", history[1].CurrentRevision)

	history, err = store.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestMemoryStore_LockContention(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore(state.WithHolder("first"))

	first, err := store.AcquireLock(ctx, time.Second)
	require.NoError(t, err)

	t.Run("times out while held", func(t *testing.T) {
		start := time.Now()
		lease, err := store.AcquireLock(ctx, 200*time.Millisecond)
		require.Nil(t, lease)
		require.True(t, errors.Is(err, state.ErrLockTimeout))
		require.Contains(t, err.Error(), "first")
		require.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("single attempt without timeout", func(t *testing.T) {
		_, err := store.AcquireLock(ctx, 0)
		require.True(t, errors.Is(err, state.ErrLockTimeout))
	})

	t.Run("succeeds once released", func(t *testing.T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = store.Release(ctx, first)
		}()

		start := time.Now()
		second, err := store.AcquireLock(ctx, 5*time.Second)
		require.NoError(t, err)
		require.NotEqual(t, first.Token, second.Token)
		require.Less(t, time.Since(start), 3*time.Second)

		require.True(t, errors.Is(store.Write(ctx, first, state.AppliedState{CurrentRevision: "x"}), state.ErrStaleLock))
		require.NoError(t, store.Write(ctx, second, state.AppliedState{CurrentRevision: "x"}))
	})
}

func TestMemoryStore_ExpiredLeaseIsFree(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := state.NewMemoryStore(state.WithClock(clock.Now), state.WithLeaseDuration(time.Minute))

	stale, err := store.AcquireLock(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(time.Minute), stale.ExpiresAt)

	clock.Advance(30 * time.Second)
	require.NoError(t, store.Renew(ctx, stale))
	require.Equal(t, clock.Now().Add(time.Minute), stale.ExpiresAt)

	clock.Advance(2 * time.Minute)
	require.True(t, stale.Expired(clock.Now()))

	err = store.Write(ctx, stale, state.AppliedState{CurrentRevision: "a1"})
	require.True(t, errors.Is(err, state.ErrStaleLock))

	fresh, err := store.AcquireLock(ctx, 0)
	require.NoError(t, err)

	require.True(t, errors.Is(store.Renew(ctx, stale), state.ErrStaleLock))
	require.NoError(t, store.Renew(ctx, fresh))

	current, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, current.IsBase())
}

func TestMemoryStore_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()

	lease, err := store.AcquireLock(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, lease))
	require.NoError(t, store.Release(ctx, lease))
	require.NoError(t, store.Release(ctx, nil))

	_, err = store.AcquireLock(ctx, 0)
	require.NoError(t, err)
}

func TestMemoryStore_AcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := state.NewMemoryStore().AcquireLock(ctx, time.Second)
	require.True(t, errors.Is(err, context.Canceled))
}
