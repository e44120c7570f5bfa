package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/strata/pkg/domain"
)

// Metrics holds the workflow collectors.
type Metrics struct {
	steps       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	layers      *prometheus.CounterVec
	checkpoints prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_workflow_steps_total",
			Help: "Workflow steps executed, by runner and outcome.",
		}, []string{"runner", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strata_workflow_step_duration_seconds",
			Help:    "Duration of workflow steps.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"runner"}),
		layers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_layers_appended_total",
			Help: "Layers appended by workflow runs, by operation kind.",
		}, []string{"kind"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_checkpoints_total",
			Help: "Checkpoints recorded by workflow runs.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.steps, m.duration, m.layers, m.checkpoints} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register workflow metrics: %w", err)
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnd: func(_ context.Context, e *domain.StepEvent) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.steps.WithLabelValues(e.Run, status).Inc()
			m.duration.WithLabelValues(e.Run).Observe(e.Duration.Seconds())
		},
		OnLayerAppended: func(_ context.Context, e *domain.LayerEvent) {
			m.layers.WithLabelValues(string(e.Kind)).Inc()
		},
		OnCheckpoint: func(context.Context, *domain.CheckpointEvent) {
			m.checkpoints.Inc()
		},
	}
}
