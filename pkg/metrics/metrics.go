// Package metrics records migration run metrics in a Prometheus registry and
// optionally pushes them to a Pushgateway when a run ends.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/pseudomuto/hermes/pkg/plan"
)

const namespace = "hermes"

// Collector holds the metrics of a single invocation. It implements
// executor.Observer.
//
// Example usage:
//
//	m := metrics.New()
//	exec := executor.New(executor.Config{ClickHouse: client, Store: store, Observer: m})
//
//	// ... apply a plan ...
//
//	if err := m.Push(ctx, "http://pushgateway:9091", "hermes"); err != nil {
//		slog.Warn("Failed to push metrics", "err", err)
//	}
type Collector struct {
	registry *prometheus.Registry

	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	LockWait     prometheus.Histogram
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Migration steps executed, by direction and outcome.",
		}, []string{"direction", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent executing a migration step.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"direction"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the migration lock.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(c.StepsTotal, c.StepDuration, c.LockWait)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) StepStarted(plan.Step) {}

func (c *Collector) StepFinished(step plan.Step, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}

	c.StepsTotal.WithLabelValues(string(step.Direction), status).Inc()
	c.StepDuration.WithLabelValues(string(step.Direction)).Observe(duration.Seconds())
}

// ObserveLockWait records how long acquiring the lock took.
func (c *Collector) ObserveLockWait(d time.Duration) {
	c.LockWait.Observe(d.Seconds())
}

// Push sends the collected metrics to a Pushgateway, replacing previous
// metrics of the same job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", url)
	}
	return nil
}
