package runner

import (
	"context"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pseudomuto/hermes/pkg/chain"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/executor"
	"github.com/pseudomuto/hermes/pkg/migrator"
	"github.com/pseudomuto/hermes/pkg/plan"
	"github.com/pseudomuto/hermes/pkg/state"
)

const (
	releaseTimeout = 10 * time.Second
	historyLimit   = 10
)

type (
	// Observer receives step and lock metrics. *metrics.Collector implements it.
	Observer interface {
		executor.Observer
		ObserveLockWait(time.Duration)
	}

	// Config contains the collaborators of a Runner.
	Config struct {
		// Migrations holds one directory per migration unit.
		Migrations fs.FS

		// ClickHouse runs migration statements.
		ClickHouse executor.ClickHouse

		// Store holds the applied state and lease.
		Store state.Store

		// LockTimeout bounds the wait for the lease (default: consts.DefaultLockTimeout).
		LockTimeout time.Duration

		// LeaseDuration is the lifetime of a lease granted by Store. Steps renew
		// the lease every third of it (default: consts.DefaultLeaseDuration).
		LeaseDuration time.Duration

		// Logger defaults to slog.Default().
		Logger *slog.Logger

		// Observer is optional.
		Observer Observer

		// ToolVersion is recorded with every state write.
		ToolVersion string
	}

	// Runner resolves migration units and applies them to one target.
	Runner struct {
		migrations  fs.FS
		store       state.Store
		lockTimeout time.Duration
		logger      *slog.Logger
		observer    Observer
		exec        *executor.Executor
	}

	// Status describes a target relative to the loaded chain.
	Status struct {
		Chain   *chain.Chain
		Current *state.AppliedState

		// InChain is false when the recorded revision is not part of the chain.
		InChain bool

		// Pending lists the units that upgrading to head would apply.
		Pending []*migrator.Unit

		// History holds the most recent state writes, newest first.
		History []state.AppliedState
	}

	// Option customizes a single ResolveAndApply call.
	Option func(*options)

	options struct {
		direction migrator.Direction
	}

	nopObserver struct{}
)

func (nopObserver) StepStarted(plan.Step)                        {}
func (nopObserver) StepFinished(plan.Step, time.Duration, error) {}
func (nopObserver) ObserveLockWait(time.Duration)                {}

// WithDirection makes ResolveAndApply fail with *DirectionError unless the
// plan moves in direction d. Empty plans are always allowed.
func WithDirection(d migrator.Direction) Option {
	return func(o *options) { o.direction = d }
}

// New creates a runner from config.
//
// Example usage:
//
//	r := runner.New(runner.Config{
//		Migrations: os.DirFS("versions"),
//		ClickHouse: client,
//		Store:      state.NewClickHouseStore(state.ClickHouseConfig{ClickHouse: client}),
//	})
//
//	report, err := r.ResolveAndApply(ctx, "head")
func New(config Config) *Runner {
	r := &Runner{
		migrations:  config.Migrations,
		store:       config.Store,
		lockTimeout: config.LockTimeout,
		logger:      config.Logger,
		observer:    config.Observer,
	}

	if r.lockTimeout == 0 {
		r.lockTimeout = consts.DefaultLockTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}

	leaseDuration := config.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = consts.DefaultLeaseDuration
	}

	r.exec = executor.New(executor.Config{
		ClickHouse:    config.ClickHouse,
		Store:         config.Store,
		Logger:        r.logger,
		Observer:      r.observer,
		ToolVersion:   config.ToolVersion,
		RenewInterval: leaseDuration / 3,
	})

	return r
}

// Chain loads and resolves the migration units.
func (r *Runner) Chain() (*chain.Chain, error) {
	units, err := migrator.LoadDir(r.migrations)
	if err != nil {
		return nil, err
	}

	return chain.Resolve(units)
}

// ResolveAndApply moves the target to target ("head", "base" or a revision).
//
// Errors are typed: *migrator.LoadError and *chain.ResolutionError come
// before the lease is requested; state.ErrLockTimeout, *plan.UnknownRevisionError,
// *plan.InvalidTargetError and *DirectionError leave the target untouched;
// *executor.PartialFailure is returned together with the report of the
// completed steps.
func (r *Runner) ResolveAndApply(ctx context.Context, target string, opts ...Option) (*executor.Report, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c, err := r.Chain()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	lease, err := r.store.AcquireLock(ctx, r.lockTimeout)
	r.observer.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, err
	}
	defer r.release(ctx, lease)

	r.logger.Debug("Acquired migration lock", "lease", lease.Token, "expires_at", lease.ExpiresAt)

	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	p, err := plan.Compute(c, current.CurrentRevision, plan.ParseTarget(target))
	if err != nil {
		return nil, err
	}

	if o.direction != "" && !p.Empty() && p.Direction() != o.direction {
		return nil, &DirectionError{Want: o.direction, Plan: p}
	}

	if p.Empty() {
		r.logger.Info("Already at target revision", "current", current.Revision())
		return &executor.Report{From: p.From, To: p.From}, nil
	}

	r.logger.Info("Applying migration plan",
		"from", current.Revision(),
		"target", target,
		"steps", len(p.Steps),
	)

	return r.exec.Apply(ctx, p, lease)
}

// Plan computes what ResolveAndApply would do without taking the lease or
// executing anything.
func (r *Runner) Plan(ctx context.Context, target string) (*plan.Plan, error) {
	c, err := r.Chain()
	if err != nil {
		return nil, err
	}

	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	return plan.Compute(c, current.CurrentRevision, plan.ParseTarget(target))
}

// Status reports the recorded revision, pending units and recent history.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	c, err := r.Chain()
	if err != nil {
		return nil, err
	}

	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	history, err := r.store.History(ctx, historyLimit)
	if err != nil {
		return nil, err
	}

	st := &Status{Chain: c, Current: current, History: history}

	p, err := plan.Compute(c, current.CurrentRevision, plan.Head)
	if err != nil {
		return st, nil
	}

	st.InChain = true
	for _, step := range p.Steps {
		st.Pending = append(st.Pending, step.Unit)
	}

	return st, nil
}

func (r *Runner) release(ctx context.Context, lease *state.Lease) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := r.store.Release(ctx, lease); err != nil {
		r.logger.Warn("Failed to release migration lock, it will expire on its own",
			"lease", lease.Token,
			"expires_at", lease.ExpiresAt,
			"err", err,
		)
	}
}
