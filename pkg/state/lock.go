package state

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	lockPollInitialInterval = 50 * time.Millisecond
	lockPollMaxInterval     = time.Second
)

var errLeaseHeld = errors.New("lease held by another invocation")

// tryAcquireFunc makes a single acquisition attempt. It returns the new lease on
// success, or the current holder when the lease is taken.
type tryAcquireFunc func(ctx context.Context) (acquired *Lease, holder *Lease, err error)

// acquireWithin polls try with exponential backoff until it succeeds, fails hard
// or timeout elapses.
func acquireWithin(ctx context.Context, timeout time.Duration, try tryAcquireFunc) (*Lease, error) {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if timeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = lockPollInitialInterval
		eb.MaxInterval = lockPollMaxInterval
		eb.MaxElapsedTime = timeout
		b = eb
	}

	var lease, holder *Lease
	err := backoff.Retry(func() error {
		acquired, current, err := try(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		if acquired == nil {
			holder = current
			return errLeaseHeld
		}

		lease = acquired
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		return lease, nil
	case errors.Is(err, errLeaseHeld):
		if holder != nil {
			return nil, errors.Wrapf(ErrLockTimeout, "lease held by %s", holder)
		}
		return nil, ErrLockTimeout
	default:
		return nil, err
	}
}
