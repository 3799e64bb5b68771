package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/utils"
)

const (
	stateTable = "revision_state"
	leaseTable = "revision_leases"

	// legacyTable is the single-row version table kept in the connection's
	// database by earlier tooling.
	legacyTable = "ch_migrations"
)

type (
	// ClickHouse defines the database operations the store needs.
	ClickHouse interface {
		Query(context.Context, string, ...any) (driver.Rows, error)
		Exec(context.Context, string, ...any) error
	}

	// ClickHouseStore keeps the applied state and lease in tracking tables on
	// the target itself.
	//
	// Both tables are append-only. The applied state is the revision_state row
	// with the highest sequence. The lease is derived from the revision_leases
	// event log: a token is live while it has no release event and its latest
	// expiry is in the future. A renewal recorded after the expiry it was meant
	// to extend does not count. Among live tokens the one with the earliest
	// claim holds the lease. Acquisition inserts a claim, checks whether it won
	// and withdraws the claim when it did not. All timestamps come from the
	// server clock.
	//
	// Example usage:
	//
	//	store := state.NewClickHouseStore(state.ClickHouseConfig{
	//		ClickHouse:  client,
	//		Database:    "hermes",
	//		ToolVersion: "1.0.0",
	//	})
	//
	//	current, err := store.Read(ctx)
	ClickHouseStore struct {
		ch            ClickHouse
		database      string
		holder        string
		leaseDuration time.Duration
		toolVersion   string
		logger        *slog.Logger
	}

	// ClickHouseConfig contains the options for creating a ClickHouseStore.
	ClickHouseConfig struct {
		// ClickHouse is the connection to the target database.
		ClickHouse ClickHouse

		// Database holds the tracking tables (default: hermes).
		Database string

		// Holder labels acquired leases (default: hostname:pid).
		Holder string

		// LeaseDuration is how long a lease lives without renewal.
		LeaseDuration time.Duration

		// ToolVersion is recorded with every state write.
		ToolVersion string

		Logger *slog.Logger
	}
)

// NewClickHouseStore creates a store backed by tracking tables in cfg.Database.
func NewClickHouseStore(cfg ClickHouseConfig) *ClickHouseStore {
	s := &ClickHouseStore{
		ch:            cfg.ClickHouse,
		database:      cfg.Database,
		holder:        cfg.Holder,
		leaseDuration: cfg.LeaseDuration,
		toolVersion:   cfg.ToolVersion,
		logger:        cfg.Logger,
	}

	if s.database == "" {
		s.database = consts.DefaultTrackingDatabase
	}
	if s.holder == "" {
		s.holder = DefaultHolder()
	}
	if s.leaseDuration <= 0 {
		s.leaseDuration = consts.DefaultLeaseDuration
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Database returns the name of the tracking database.
func (s *ClickHouseStore) Database() string {
	return s.database
}

// IsBootstrapped reports whether both tracking tables exist.
func (s *ClickHouseStore) IsBootstrapped(ctx context.Context) (bool, error) {
	rows, err := s.ch.Query(ctx,
		"SELECT count() FROM system.tables WHERE database = ? AND name IN (?, ?)",
		s.database, stateTable, leaseTable,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to check for tracking tables")
	}
	defer func() { _ = rows.Close() }()

	var n uint64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, errors.Wrap(err, "failed to scan tracking table count")
		}
	}

	return n == 2, rows.Err()
}

// Bootstrap creates the tracking database and tables if they don't exist.
func (s *ClickHouseStore) Bootstrap(ctx context.Context) error {
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return err
	}

	if bootstrapped {
		return nil
	}

	s.logger.Info("Creating migration tracking tables", "database", s.database)

	for _, stmt := range s.bootstrapStatements() {
		if err := s.ch.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute bootstrap statement: %s", stmt)
		}
	}

	return nil
}

func (s *ClickHouseStore) bootstrapStatements() []string {
	db := utils.BacktickIdentifier(s.database)

	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s COMMENT 'hermes migration tracking database'`, db),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    sequence UInt64 COMMENT 'Monotonic write counter, the highest row is the current state',
    current_revision Nullable(String) COMMENT 'The last applied revision, NULL for base',
    applied_at DateTime64(3, 'UTC') COMMENT 'When the state was written',
    lease_token String COMMENT 'The lease the write was made under',
    lease_expires_at DateTime64(3, 'UTC') COMMENT 'Expiry of that lease at write time',
    tool_version String COMMENT 'The version of hermes that made the write'
)
ENGINE = MergeTree()
ORDER BY sequence
COMMENT 'Applied revision history'`, utils.QualifiedName(s.database, stateTable)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    token String COMMENT 'Unique token of a lease claim',
    holder String COMMENT 'Who made the claim',
    event Enum8('claim' = 1, 'renew' = 2, 'release' = 3),
    at DateTime64(3, 'UTC') COMMENT 'When the event was recorded',
    expires_at DateTime64(3, 'UTC') COMMENT 'Lease expiry carried by the event'
)
ENGINE = MergeTree()
ORDER BY (token, at)
TTL toDateTime(at) + INTERVAL 30 DAY
COMMENT 'Migration lease events'`, utils.QualifiedName(s.database, leaseTable)),
	}
}

func (s *ClickHouseStore) Read(ctx context.Context) (*AppliedState, error) {
	if err := s.Bootstrap(ctx); err != nil {
		return nil, err
	}

	states, err := s.History(ctx, 1)
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		return s.adoptLegacy(ctx)
	}

	return &states[0], nil
}

// adoptLegacy seeds revision_state from a legacy ch_migrations table when one
// exists and names a revision. Without one the target is at base.
func (s *ClickHouseStore) adoptLegacy(ctx context.Context) (*AppliedState, error) {
	rev, err := s.legacyRevision(ctx)
	if err != nil {
		return nil, err
	}

	if rev == "" {
		return &AppliedState{}, nil
	}

	s.logger.Info("Adopting revision from legacy tracking table", "table", legacyTable, "revision", rev)

	query := fmt.Sprintf(`INSERT INTO %s (sequence, current_revision, applied_at, lease_token, lease_expires_at, tool_version)
SELECT 1, ?, now64(3) AS ts, ?, ts, ?`, utils.QualifiedName(s.database, stateTable))

	if err := s.ch.Exec(ctx, query, rev, legacyTable, s.toolVersion); err != nil {
		return nil, errors.Wrapf(err, "failed to adopt revision %q from %s", rev, legacyTable)
	}

	states, err := s.History(ctx, 1)
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		return &AppliedState{CurrentRevision: rev, Sequence: 1, LeaseToken: legacyTable, ToolVersion: s.toolVersion}, nil
	}

	return &states[0], nil
}

// legacyRevision returns the version recorded in ch_migrations, or "" when the
// table is missing or empty.
func (s *ClickHouseStore) legacyRevision(ctx context.Context) (string, error) {
	rows, err := s.ch.Query(ctx, "EXISTS TABLE "+utils.BacktickIdentifier(legacyTable))
	if err != nil {
		return "", errors.Wrapf(err, "failed to check for %s", legacyTable)
	}

	var exists uint8
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			_ = rows.Close()
			return "", errors.Wrapf(err, "failed to scan %s check", legacyTable)
		}
	}
	_ = rows.Close()

	if exists == 0 {
		return "", nil
	}

	rows, err = s.ch.Query(ctx, fmt.Sprintf("SELECT version FROM %s LIMIT 1", utils.BacktickIdentifier(legacyTable)))
	if err != nil {
		return "", errors.Wrapf(err, "failed to query %s", legacyTable)
	}
	defer func() { _ = rows.Close() }()

	var version string
	if rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return "", errors.Wrapf(err, "failed to scan %s version", legacyTable)
		}
	}

	return strings.TrimSpace(version), rows.Err()
}

func (s *ClickHouseStore) History(ctx context.Context, limit int) ([]AppliedState, error) {
	query := fmt.Sprintf(`SELECT sequence, current_revision, applied_at, lease_token, lease_expires_at, tool_version
FROM %s
ORDER BY sequence DESC`, utils.QualifiedName(s.database, stateTable))

	var args []any
	if limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.ch.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query applied state")
	}
	defer func() { _ = rows.Close() }()

	var states []AppliedState
	for rows.Next() {
		var (
			st  AppliedState
			rev *string
		)

		if err := rows.Scan(&st.Sequence, &rev, &st.AppliedAt, &st.LeaseToken, &st.LeaseExpiresAt, &st.ToolVersion); err != nil {
			return nil, errors.Wrap(err, "failed to scan applied state")
		}

		if rev != nil {
			st.CurrentRevision = *rev
		}
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read applied state")
	}

	return states, nil
}

func (s *ClickHouseStore) AcquireLock(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if err := s.Bootstrap(ctx); err != nil {
		return nil, err
	}

	return acquireWithin(ctx, timeout, s.tryAcquire)
}

func (s *ClickHouseStore) tryAcquire(ctx context.Context) (*Lease, *Lease, error) {
	token := uuid.NewString()
	if err := s.insertEvent(ctx, token, "claim", s.leaseDuration); err != nil {
		return nil, nil, errors.Wrap(err, "failed to claim migration lock")
	}

	leases, err := s.liveLeases(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(leases) > 0 && leases[0].Token == token {
		s.logger.Debug("Acquired migration lock", "token", token, "expires_at", leases[0].ExpiresAt)
		return &leases[0], nil, nil
	}

	if err := s.insertEvent(ctx, token, "release", 0); err != nil {
		return nil, nil, errors.Wrap(err, "failed to withdraw migration lock claim")
	}

	if len(leases) == 0 {
		return nil, nil, errors.New("lease claim was not visible after insert")
	}

	s.logger.Debug("Migration lock is held", "holder", leases[0].Holder, "expires_at", leases[0].ExpiresAt)
	return nil, &leases[0], nil
}

func (s *ClickHouseStore) Renew(ctx context.Context, lease *Lease) error {
	if _, err := s.checkHeld(ctx, lease); err != nil {
		return err
	}

	if err := s.insertEvent(ctx, lease.Token, "renew", s.leaseDuration); err != nil {
		return errors.Wrap(err, "failed to renew migration lock")
	}

	current, err := s.checkHeld(ctx, lease)
	if err != nil {
		return err
	}

	lease.ExpiresAt = current.ExpiresAt
	return nil
}

func (s *ClickHouseStore) Write(ctx context.Context, lease *Lease, next AppliedState) error {
	current, err := s.checkHeld(ctx, lease)
	if err != nil {
		return err
	}

	latest, err := s.History(ctx, 1)
	if err != nil {
		return err
	}

	var seq uint64 = 1
	if len(latest) > 0 {
		seq = latest[0].Sequence + 1
	}

	toolVersion := next.ToolVersion
	if toolVersion == "" {
		toolVersion = s.toolVersion
	}

	query := fmt.Sprintf(`INSERT INTO %s (sequence, current_revision, applied_at, lease_token, lease_expires_at, tool_version)
SELECT ?, ?, now64(3), ?, ?, ?`, utils.QualifiedName(s.database, stateTable))

	if err := s.ch.Exec(ctx, query, seq, utils.NullableString(next.CurrentRevision), lease.Token, current.ExpiresAt, toolVersion); err != nil {
		return errors.Wrapf(err, "failed to record applied revision %q", next.CurrentRevision)
	}

	return nil
}

func (s *ClickHouseStore) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	if err := s.insertEvent(ctx, lease.Token, "release", 0); err != nil {
		return errors.Wrap(err, "failed to release migration lock")
	}

	return nil
}

// checkHeld returns the live record of lease if it still holds the lock.
func (s *ClickHouseStore) checkHeld(ctx context.Context, lease *Lease) (*Lease, error) {
	if lease == nil {
		return nil, ErrStaleLock
	}

	leases, err := s.liveLeases(ctx)
	if err != nil {
		return nil, err
	}

	if len(leases) == 0 || leases[0].Token != lease.Token {
		return nil, errors.Wrapf(ErrStaleLock, "lease %s", lease.Token)
	}

	return &leases[0], nil
}

// liveLeases returns unreleased, unexpired lease tokens in claim order. A
// renew event only extends the lease when it was recorded before the expiry
// carried by the events preceding it.
func (s *ClickHouseStore) liveLeases(ctx context.Context) ([]Lease, error) {
	query := fmt.Sprintf(`SELECT token, anyIf(holder, event = 'claim') AS claimed_by, min(at) AS claimed_at,
    maxIf(expires_at, event = 'claim' OR (event = 'renew' AND at < prev_expiry)) AS lease_expiry
FROM (
    SELECT token, holder, event, at, expires_at,
        max(expires_at) OVER (PARTITION BY token ORDER BY at ROWS BETWEEN UNBOUNDED PRECEDING AND 1 PRECEDING) AS prev_expiry
    FROM %s
)
GROUP BY token
HAVING countIf(event = 'release') = 0 AND countIf(event = 'claim') > 0 AND lease_expiry > now64(3)
ORDER BY claimed_at, token`, utils.QualifiedName(s.database, leaseTable))

	rows, err := s.ch.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query migration locks")
	}
	defer func() { _ = rows.Close() }()

	var leases []Lease
	for rows.Next() {
		var l Lease
		if err := rows.Scan(&l.Token, &l.Holder, &l.AcquiredAt, &l.ExpiresAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration lock")
		}
		leases = append(leases, l)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read migration locks")
	}

	return leases, nil
}

func (s *ClickHouseStore) insertEvent(ctx context.Context, token, event string, ttl time.Duration) error {
	query := fmt.Sprintf(`INSERT INTO %s (token, holder, event, at, expires_at)
SELECT ?, ?, ?, now64(3) AS ts, addMilliseconds(ts, ?)`, utils.QualifiedName(s.database, leaseTable))

	return s.ch.Exec(ctx, query, token, s.holder, event, ttl.Milliseconds())
}
