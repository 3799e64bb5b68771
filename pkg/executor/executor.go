package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/plan"
	"github.com/pseudomuto/hermes/pkg/state"
)

type (
	// ClickHouse defines the database operations the executor needs to run scripts.
	ClickHouse interface {
		Exec(context.Context, string, ...any) error
	}

	// Observer is notified around every executed step.
	Observer interface {
		StepStarted(step plan.Step)
		StepFinished(step plan.Step, duration time.Duration, err error)
	}

	// Executor applies plans against a ClickHouse target.
	Executor struct {
		ch            ClickHouse
		store         state.Store
		logger        *slog.Logger
		observer      Observer
		toolVersion   string
		renewInterval time.Duration
	}

	// Config contains configuration options for creating a new Executor.
	Config struct {
		// ClickHouse runs the migration statements.
		ClickHouse ClickHouse

		// Store records the applied revision after every step.
		Store state.Store

		// Logger defaults to slog.Default().
		Logger *slog.Logger

		// Observer is optional.
		Observer Observer

		// ToolVersion is recorded with every state write.
		ToolVersion string

		// RenewInterval is how often the lease is renewed while a step runs
		// (default: a third of consts.DefaultLeaseDuration).
		RenewInterval time.Duration
	}

	// Report describes a plan that was applied in full.
	Report struct {
		// From and To are the revisions before and after execution ("" for base).
		From string
		To   string

		// Steps holds one result per applied step in execution order.
		Steps []StepResult
	}

	// StepResult describes one applied step.
	StepResult struct {
		Step plan.Step

		// Revision is the recorded current revision after the step.
		Revision string

		// Statements is the number of statements executed.
		Statements int

		Duration time.Duration
	}

	// keepAlive renews a lease in the background until it is stopped or a
	// renewal fails.
	keepAlive struct {
		stop chan struct{}
		done chan struct{}

		mu  sync.Mutex
		err error
	}

	nopObserver struct{}
)

func (nopObserver) StepStarted(plan.Step)                        {}
func (nopObserver) StepFinished(plan.Step, time.Duration, error) {}

// New creates a new executor with the provided configuration.
func New(config Config) *Executor {
	e := &Executor{
		ch:            config.ClickHouse,
		store:         config.Store,
		logger:        config.Logger,
		observer:      config.Observer,
		toolVersion:   config.ToolVersion,
		renewInterval: config.RenewInterval,
	}

	if e.renewInterval <= 0 {
		e.renewInterval = consts.DefaultLeaseDuration / 3
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	return e
}

// Apply executes p step by step under lease.
//
// On success the returned report covers every step. On failure the report
// covers the steps completed so far and the error is a *PartialFailure. An
// empty plan is a no-op that touches neither the database nor the store.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, lease *state.Lease) (*Report, error) {
	report := &Report{From: p.From, To: p.From}

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return report, e.partialFailure(report, step, -1, false, errors.Wrap(err, "execution interrupted"))
		}

		result, failure := e.applyStep(ctx, step, lease)
		if failure != nil {
			return report, e.partialFailure(report, step, failure.statement, failure.stateWrite, failure.err)
		}

		report.Steps = append(report.Steps, *result)
		report.To = result.Revision
	}

	return report, nil
}

type stepFailure struct {
	statement  int
	stateWrite bool
	err        error
}

func (e *Executor) applyStep(ctx context.Context, step plan.Step, lease *state.Lease) (result *StepResult, failure *stepFailure) {
	start := time.Now()
	e.observer.StepStarted(step)
	defer func() {
		var err error
		if failure != nil {
			err = failure.err
		}
		e.observer.StepFinished(step, time.Since(start), err)
	}()

	if err := e.store.Renew(ctx, lease); err != nil {
		return nil, &stepFailure{statement: -1, err: errors.Wrap(err, "failed to renew migration lock")}
	}

	stmts := step.Statements()
	e.logger.Info("Applying migration step",
		"revision", step.Unit.Revision,
		"direction", step.Direction,
		"statements", len(stmts),
	)

	if len(stmts) == 0 {
		e.logger.Warn("Migration script has no statements", "revision", step.Unit.Revision, "direction", step.Direction)
	}

	// Scripts and the state write that follows them are not abandoned on cancellation.
	execCtx := context.WithoutCancel(ctx)

	renewal := e.startRenewal(execCtx, lease)
	for i, stmt := range stmts {
		if err := renewal.Err(); err != nil {
			_ = renewal.Stop()
			return nil, &stepFailure{
				statement: i,
				err:       errors.Wrapf(err, "migration lock lost before statement %d of %d", i+1, len(stmts)),
			}
		}

		if err := e.ch.Exec(execCtx, stmt); err != nil {
			_ = renewal.Stop()
			return nil, &stepFailure{
				statement: i,
				err:       errors.Wrapf(err, "statement %d of %d failed", i+1, len(stmts)),
			}
		}
	}

	// The write below checks the lease itself.
	if err := renewal.Stop(); err != nil {
		e.logger.Warn("Migration lock renewal failed during the last statement", "revision", step.Unit.Revision, "err", err)
	}

	next := state.AppliedState{CurrentRevision: step.Result(), ToolVersion: e.toolVersion}
	if err := e.store.Write(execCtx, lease, next); err != nil {
		return nil, &stepFailure{
			statement:  len(stmts),
			stateWrite: true,
			err:        errors.Wrap(err, "script succeeded but recording the applied revision failed"),
		}
	}

	duration := time.Since(start)
	e.logger.Info("Applied migration step",
		"revision", step.Unit.Revision,
		"direction", step.Direction,
		"current", next.CurrentRevision,
		"duration", duration,
	)

	return &StepResult{
		Step:       step,
		Revision:   next.CurrentRevision,
		Statements: len(stmts),
		Duration:   duration,
	}, nil
}

// startRenewal renews lease every renewInterval. The lease must not be
// touched by the caller until Stop returns.
func (e *Executor) startRenewal(ctx context.Context, lease *state.Lease) *keepAlive {
	k := &keepAlive{stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(k.done)

		ticker := time.NewTicker(e.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-k.stop:
				return
			case <-ticker.C:
				if err := e.store.Renew(ctx, lease); err != nil {
					e.logger.Error("Failed to renew migration lock", "lease", lease.Token, "err", err)
					k.fail(errors.Wrap(err, "failed to renew migration lock"))
					return
				}
				e.logger.Debug("Renewed migration lock", "lease", lease.Token, "expires_at", lease.ExpiresAt)
			}
		}
	}()

	return k
}

func (k *keepAlive) fail(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}

// Err returns the renewal error, if any.
func (k *keepAlive) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Stop ends renewal and waits for the renewing goroutine to exit.
func (k *keepAlive) Stop() error {
	close(k.stop)
	<-k.done
	return k.Err()
}

func (e *Executor) partialFailure(report *Report, step plan.Step, statement int, stateWrite bool, err error) *PartialFailure {
	pf := &PartialFailure{
		Completed:        append([]StepResult(nil), report.Steps...),
		Failed:           step,
		Statement:        statement,
		Current:          report.To,
		StateWriteFailed: stateWrite,
		Err:              err,
	}

	e.logger.Error("Migration step failed",
		"revision", step.Unit.Revision,
		"direction", step.Direction,
		"completed", len(pf.Completed),
		"current", pf.Current,
		"err", err,
	)

	return pf
}

// Applied returns the revisions of the units applied, in execution order.
func (r *Report) Applied() []string {
	revs := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		revs[i] = s.Step.Unit.Revision
	}
	return revs
}

// Duration returns the total time spent executing steps.
func (r *Report) Duration() time.Duration {
	var d time.Duration
	for _, s := range r.Steps {
		d += s.Duration
	}
	return d
}
