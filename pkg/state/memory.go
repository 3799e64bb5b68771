package state

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
)

type (
	// MemoryStore is a Store kept in process memory. It has the same lease
	// semantics as the ClickHouse store and is safe for concurrent use.
	MemoryStore struct {
		mu            sync.Mutex
		now           func() time.Time
		holder        string
		leaseDuration time.Duration
		lease         *Lease
		history       []AppliedState
	}

	// MemoryOption configures a MemoryStore.
	MemoryOption func(*MemoryStore)
)

// WithClock sets the clock used for lease expiry and write timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithLeaseDuration sets how long a lease lives without renewal.
func WithLeaseDuration(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.leaseDuration = d }
}

// WithHolder sets the holder label recorded on acquired leases.
func WithHolder(holder string) MemoryOption {
	return func(s *MemoryStore) { s.holder = holder }
}

// NewMemoryStore creates an empty store at base.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:           time.Now,
		holder:        DefaultHolder(),
		leaseDuration: consts.DefaultLeaseDuration,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *MemoryStore) Read(ctx context.Context) (*AppliedState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return &AppliedState{}, nil
	}

	latest := s.history[len(s.history)-1]
	return &latest, nil
}

func (s *MemoryStore) AcquireLock(ctx context.Context, timeout time.Duration) (*Lease, error) {
	return acquireWithin(ctx, timeout, s.tryAcquire)
}

func (s *MemoryStore) tryAcquire(ctx context.Context) (*Lease, *Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.lease != nil && !s.lease.Expired(now) {
		holder := *s.lease
		return nil, &holder, nil
	}

	s.lease = &Lease{
		Token:      uuid.NewString(),
		Holder:     s.holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.leaseDuration),
	}

	lease := *s.lease
	return &lease, nil, nil
}

func (s *MemoryStore) Renew(ctx context.Context, lease *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHeld(lease); err != nil {
		return err
	}

	s.lease.ExpiresAt = s.now().Add(s.leaseDuration)
	lease.ExpiresAt = s.lease.ExpiresAt
	return nil
}

func (s *MemoryStore) Write(ctx context.Context, lease *Lease, next AppliedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHeld(lease); err != nil {
		return err
	}

	next.Sequence = uint64(len(s.history)) + 1
	next.AppliedAt = s.now()
	next.LeaseToken = lease.Token
	next.LeaseExpiresAt = s.lease.ExpiresAt
	s.history = append(s.history, next)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, lease *Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease != nil && s.lease != nil && s.lease.Token == lease.Token {
		s.lease = nil
	}
	return nil
}

func (s *MemoryStore) History(ctx context.Context, limit int) ([]AppliedState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.history)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) checkHeld(lease *Lease) error {
	if lease == nil || s.lease == nil || s.lease.Token != lease.Token {
		return ErrStaleLock
	}

	if s.lease.Expired(s.now()) {
		return errors.Wrapf(ErrStaleLock, "lease expired at %s", s.lease.ExpiresAt.UTC().Format(time.RFC3339))
	}

	return nil
}
