// Package state persists the applied revision of a target database and guards
// mutation of it with a bounded lease.
//
// The applied state is a single marker naming the last unit whose upgrade has
// been applied (or base when nothing is applied). It is never cached between
// calls: every Read goes back to the target. Writes require the caller to hold
// a live lease, which is how concurrent invocations against the same target are
// kept from interleaving.
package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrLockTimeout is returned when another live lease is still held after the
	// acquisition timeout elapsed. Nothing has been mutated when it is returned.
	ErrLockTimeout = errors.New("timed out waiting for migration lock")

	// ErrStaleLock is returned when a renewal or write is attempted with a lease
	// that expired or was taken over by another holder.
	ErrStaleLock = errors.New("migration lock is no longer held")
)

type (
	// Store reads and writes the applied state of a single target database.
	//
	// Example usage:
	//
	//	lease, err := store.AcquireLock(ctx, 30*time.Second)
	//	if err != nil {
	//		return err
	//	}
	//	defer func() { _ = store.Release(context.WithoutCancel(ctx), lease) }()
	//
	//	current, err := store.Read(ctx)
	//	if err != nil {
	//		return err
	//	}
	//
	//	err = store.Write(ctx, lease, state.AppliedState{CurrentRevision: "a1"})
	Store interface {
		// Read returns the current applied state, bootstrapping tracking storage
		// and returning a base state when nothing has been recorded yet.
		Read(ctx context.Context) (*AppliedState, error)

		// AcquireLock waits up to timeout for the lease. A timeout <= 0 makes a
		// single attempt. Expired leases are treated as free.
		AcquireLock(ctx context.Context, timeout time.Duration) (*Lease, error)

		// Renew extends lease, updating its ExpiresAt in place.
		Renew(ctx context.Context, lease *Lease) error

		// Write records next as the applied state. The lease must still be held.
		Write(ctx context.Context, lease *Lease, next AppliedState) error

		// Release gives up the lease. Releasing twice is not an error.
		Release(ctx context.Context, lease *Lease) error

		// History returns up to limit recorded states, newest first.
		History(ctx context.Context, limit int) ([]AppliedState, error)
	}

	// AppliedState is the persisted marker of what has been applied to a target.
	AppliedState struct {
		// CurrentRevision is the last applied unit, or "" for base.
		CurrentRevision string

		// Sequence increases by one with every write.
		Sequence uint64

		// AppliedAt is when the state was written, by the store's clock.
		AppliedAt time.Time

		// LeaseToken and LeaseExpiresAt identify the lease the write was made under.
		LeaseToken     string
		LeaseExpiresAt time.Time

		// ToolVersion is the hermes version that made the write.
		ToolVersion string
	}

	// Lease is a bounded-duration claim on the right to mutate a target.
	Lease struct {
		Token      string
		Holder     string
		AcquiredAt time.Time
		ExpiresAt  time.Time
	}
)

// IsBase reports whether nothing is applied.
func (s *AppliedState) IsBase() bool {
	return s.CurrentRevision == ""
}

// Revision returns the current revision, rendering base as "<base>".
func (s *AppliedState) Revision() string {
	if s.IsBase() {
		return "<base>"
	}
	return s.CurrentRevision
}

// Expired reports whether the lease is no longer live at now.
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *Lease) String() string {
	return fmt.Sprintf("%s (token %s, expires %s)", l.Holder, l.Token, l.ExpiresAt.UTC().Format(time.RFC3339))
}

// DefaultHolder identifies this process as a lease holder.
func DefaultHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
