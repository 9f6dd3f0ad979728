// Package metrics exports engine activity as Prometheus collectors.
package metrics

import (
	"context"
	"fmt"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipetree"

// Collector records commands, step runs and tree swaps.
type Collector struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	StepRuns        *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	TreeSwaps       prometheus.Counter
	TreeNodes       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands processed by the driver, by event and outcome.",
			},
			[]string{"event", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent processing one command.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"event"},
		),
		StepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_runs_total",
				Help:      "Step executions, by function and outcome.",
			},
			[]string{"nq_name", "outcome", "mock"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step executions.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"nq_name"},
		),
		TreeSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_swaps_total",
			Help:      "State trees installed by initPipeline and loadPipeline.",
		}),
		TreeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_nodes",
			Help:      "Nodes of the most recently installed state tree.",
		}),
	}

	for _, col := range []prometheus.Collector{c.Commands, c.CommandDuration, c.StepRuns, c.StepDuration, c.TreeSwaps, c.TreeNodes} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks feeding the collectors.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCommandDone: func(_ context.Context, e *domain.CommandEvent) {
			c.Commands.WithLabelValues(e.Command, "ok").Inc()
			c.CommandDuration.WithLabelValues(e.Command).Observe(e.Duration.Seconds())
		},
		OnCommandFailed: func(_ context.Context, e *domain.CommandEvent) {
			c.Commands.WithLabelValues(e.Command, "error").Inc()
			c.CommandDuration.WithLabelValues(e.Command).Observe(e.Duration.Seconds())
		},
		OnStepRun: func(_ context.Context, e *domain.StepEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			mock := "false"
			if e.Mock {
				mock = "true"
			}
			c.StepRuns.WithLabelValues(e.NqName, outcome, mock).Inc()
			c.StepDuration.WithLabelValues(e.NqName).Observe(e.Duration.Seconds())
		},
		OnTreeSwap: func(_ context.Context, e *domain.TreeEvent) {
			c.TreeSwaps.Inc()
			c.TreeNodes.Set(float64(e.Nodes))
		},
	}
}
