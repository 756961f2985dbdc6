/*
Package observability provides Prometheus instrumentation for the
orchestration core, wired in through the domain lifecycle hooks.
*/
package observability

import (
	"context"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exposed on the control plane's /metrics.
type Metrics struct {
	CallsTotal     *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	WorkersRunning prometheus.Gauge
	WorkerStarts   prometheus.Counter
	WorkerCrashes  prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "journeysim_calls_total",
				Help: "Total number of chained worker calls by outcome",
			},
			[]string{"outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "journeysim_call_duration_seconds",
				Help: "Duration of chained worker calls",
			},
			[]string{"service"},
		),
		WorkersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journeysim_workers_running",
			Help: "Number of live worker processes",
		}),
		WorkerStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeysim_worker_starts_total",
			Help: "Total number of worker processes started",
		}),
		WorkerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeysim_worker_crashes_total",
			Help: "Total number of workers that exited without being stopped",
		}),
	}
	reg.MustRegister(
		m.CallsTotal,
		m.CallDuration,
		m.WorkersRunning,
		m.WorkerStarts,
		m.WorkerCrashes,
	)
	return m
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnWorkerStart: func(ctx context.Context, e *domain.WorkerEvent) {
			m.WorkersRunning.Inc()
			m.WorkerStarts.Inc()
		},
		OnWorkerStop: func(ctx context.Context, e *domain.WorkerEvent) {
			m.WorkersRunning.Dec()
			if e.Reason == "crashed" {
				m.WorkerCrashes.Inc()
			}
		},
		OnStepReturn: func(ctx context.Context, e *domain.CallEvent) {
			m.CallsTotal.WithLabelValues(e.Outcome).Inc()
			m.CallDuration.WithLabelValues(string(e.Owner)).Observe(e.Duration.Seconds())
		},
	}
}

// MergeHooks chains hook sets so loggers and metrics can both observe.
func MergeHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var merged domain.LifecycleHooks
	for _, h := range sets {
		h := h
		if h.OnWorkerStart != nil {
			prev := merged.OnWorkerStart
			merged.OnWorkerStart = func(ctx context.Context, e *domain.WorkerEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnWorkerStart(ctx, e)
			}
		}
		if h.OnWorkerStop != nil {
			prev := merged.OnWorkerStop
			merged.OnWorkerStop = func(ctx context.Context, e *domain.WorkerEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnWorkerStop(ctx, e)
			}
		}
		if h.OnStepCall != nil {
			prev := merged.OnStepCall
			merged.OnStepCall = func(ctx context.Context, e *domain.CallEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStepCall(ctx, e)
			}
		}
		if h.OnStepReturn != nil {
			prev := merged.OnStepReturn
			merged.OnStepReturn = func(ctx context.Context, e *domain.CallEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStepReturn(ctx, e)
			}
		}
	}
	return merged
}
