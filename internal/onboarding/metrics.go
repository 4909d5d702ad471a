package onboarding

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the onboarding Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions  *prometheus.CounterVec
	hookFailures *prometheus.CounterVec
	hookDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_transitions_total",
				Help: "Onboarding state transitions by operation, step and outcome",
			},
			[]string{"operation", "step", "outcome"},
		),
		hookFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_hook_failures_total",
				Help: "Lifecycle hook failures by step and hook",
			},
			[]string{"step", "hook"},
		),
		hookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboarding_hook_duration_seconds",
				Help:    "Duration of lifecycle hook executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step", "hook"},
		),
	}
	reg.MustRegister(m.transitions, m.hookFailures, m.hookDuration)
	return m
}

func (m *Metrics) observeTransition(operation string, step StepID, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transitions.WithLabelValues(operation, string(step), outcome).Inc()
}

func (m *Metrics) observeHook(step StepID, hook string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.hookDuration.WithLabelValues(string(step), hook).Observe(took.Seconds())
	if err != nil {
		m.hookFailures.WithLabelValues(string(step), hook).Inc()
	}
}
