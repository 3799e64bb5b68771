package roundtrip

import (
	"context"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/chain"
	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/pseudomuto/hermes/pkg/runner"
	"github.com/pseudomuto/hermes/pkg/state"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 2
	stopTimeout        = time.Minute
)

type (
	// Target is a provisioned disposable server. *docker.Container implements it.
	Target interface {
		DSN(ctx context.Context) (string, error)
		Stop(ctx context.Context) error
	}

	// Session is a connection to a Target. *clickhouse.Client implements it.
	Session interface {
		Exec(ctx context.Context, query string, args ...any) error
		Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
		SchemaFingerprint(ctx context.Context, exclude ...string) (*clickhouse.Fingerprint, error)
		GetVersion(ctx context.Context) (*clickhouse.VersionInfo, error)
		Close() error
	}

	// ProvisionFunc starts a disposable server running the given engine version.
	ProvisionFunc func(ctx context.Context, version string) (Target, error)

	// ConnectFunc opens a session to dsn.
	ConnectFunc func(ctx context.Context, dsn string) (Session, error)

	// StoreFunc creates the applied-state store for a session.
	StoreFunc func(Session) state.Store

	// Config contains the collaborators of a Harness.
	Config struct {
		// Migrations holds one directory per migration unit.
		Migrations fs.FS

		Provision ProvisionFunc
		Connect   ConnectFunc

		// NewStore defaults to a ClickHouse store in TrackingDatabase.
		NewStore StoreFunc

		// TrackingDatabase is excluded from fingerprints (default: consts.DefaultTrackingDatabase).
		TrackingDatabase string

		// Concurrency bounds how many versions RunAll checks at once (default: 2).
		Concurrency int

		Logger   *slog.Logger
		Observer runner.Observer
	}

	// Harness runs round trips against disposable servers.
	Harness struct {
		migrations  fs.FS
		provision   ProvisionFunc
		connect     ConnectFunc
		newStore    StoreFunc
		trackingDB  string
		concurrency int
		logger      *slog.Logger
		observer    runner.Observer
	}
)

// New creates a harness from config.
func New(config Config) *Harness {
	h := &Harness{
		migrations:  config.Migrations,
		provision:   config.Provision,
		connect:     config.Connect,
		newStore:    config.NewStore,
		trackingDB:  config.TrackingDatabase,
		concurrency: config.Concurrency,
		logger:      config.Logger,
		observer:    config.Observer,
	}

	if h.trackingDB == "" {
		h.trackingDB = consts.DefaultTrackingDatabase
	}
	if h.concurrency <= 0 {
		h.concurrency = defaultConcurrency
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.newStore == nil {
		h.newStore = func(s Session) state.Store {
			return state.NewClickHouseStore(state.ClickHouseConfig{
				ClickHouse: s,
				Database:   h.trackingDB,
				Logger:     h.logger,
			})
		}
	}

	return h
}

// Run performs one round trip on a fresh server running version.
//
// Problems with the migrations themselves are reported in the returned
// Report. An error is returned only when the round trip could not be carried
// out: the units fail to load or resolve, the server cannot be provisioned
// or reached, or it runs a different version than requested.
func (h *Harness) Run(ctx context.Context, version string) (*Report, error) {
	units, err := migrator.LoadDir(h.migrations)
	if err != nil {
		return nil, err
	}

	c, err := chain.Resolve(units)
	if err != nil {
		return nil, err
	}

	logger := h.logger.With("version", version)
	logger.Info("Provisioning round-trip target", "units", c.Len())

	target, err := h.provision(ctx, version)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to provision ClickHouse %s", version)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()

		if err := target.Stop(stopCtx); err != nil {
			logger.Warn("Failed to stop round-trip target", "err", err)
		}
	}()

	dsn, err := target.DSN(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get DSN for ClickHouse %s", version)
	}

	session, err := h.connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to ClickHouse %s", version)
	}
	defer func() { _ = session.Close() }()

	running, err := session.GetVersion(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check version of ClickHouse %s", version)
	}
	if !running.Matches(version) {
		return nil, errors.Errorf("provisioned server runs ClickHouse %s, expected %s", running, version)
	}
	logger.Debug("Round-trip target ready", "server_version", running.Raw)

	store := h.newStore(session)
	r := runner.New(runner.Config{
		Migrations: h.migrations,
		ClickHouse: session,
		Store:      store,
		Logger:     logger,
		Observer:   h.observer,
	})

	report := &Report{Version: version}
	report.FingerprintBefore = h.fingerprint(ctx, logger, session, report)

	report.Up, err = r.ResolveAndApply(ctx, consts.TargetHead)
	if err != nil {
		report.fail(ScriptFailure, migrator.Up, err)
		return report, nil
	}

	report.Down, err = r.ResolveAndApply(ctx, consts.TargetBase)
	if err != nil {
		report.fail(ScriptFailure, migrator.Down, err)
		return report, nil
	}

	final, err := store.Read(ctx)
	if err != nil {
		report.fail(ScriptFailure, migrator.Down, errors.Wrap(err, "failed to read applied state after downgrade"))
		return report, nil
	}
	if !final.IsBase() {
		report.fail(ScriptFailure, migrator.Down, errors.Errorf("applied state is %s after downgrade, expected base", final.CurrentRevision))
	}

	report.FingerprintAfter = h.fingerprint(ctx, logger, session, report)
	if report.FingerprintBefore != nil && report.FingerprintAfter != nil && !report.FingerprintBefore.Equal(report.FingerprintAfter) {
		report.fail(RoundTripDivergence, "", &DivergenceError{Diff: report.FingerprintBefore.Diff(report.FingerprintAfter)})
	}

	if report.Passed() {
		logger.Info("Round trip passed", "steps", len(report.Up.Steps)+len(report.Down.Steps))
	} else {
		logger.Error("Round trip failed", "failures", len(report.Failures))
	}

	return report, nil
}

// RunAll runs one round trip per version, at most Concurrency at a time.
// Reports are returned in the order of versions. The first error cancels the
// remaining runs.
func (h *Harness) RunAll(ctx context.Context, versions []string) ([]*Report, error) {
	reports := make([]*Report, len(versions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i, version := range versions {
		g.Go(func() error {
			report, err := h.Run(ctx, version)
			if err != nil {
				return err
			}

			reports[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

func (h *Harness) fingerprint(ctx context.Context, logger *slog.Logger, session Session, report *Report) *clickhouse.Fingerprint {
	fp, err := session.SchemaFingerprint(ctx, h.trackingDB)
	if err != nil {
		logger.Warn("Schema fingerprint unavailable, divergence will not be checked", "err", err)
		if report.FingerprintErr == nil {
			report.FingerprintErr = err
		}
		return nil
	}
	return fp
}
