package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the download engine.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ServersHealthy  prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total fetch attempts by round.",
		},
		[]string{"round"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_outcomes_total",
			Help: "Terminal per-target outcomes by kind.",
		},
		[]string{"outcome"},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetch_attempt_duration_seconds",
			Help:    "Duration of one fetch attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Total targets resubmitted into retry rounds.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_errors_total",
			Help: "Total attempt errors by type.",
		},
		[]string{"error_type"},
	)
	serversHealthy := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetch_servers_healthy",
			Help: "Healthy servers found by the connectivity probe.",
		},
	)

	registry.MustRegister(attempts, outcomes, attemptDuration, retries, errorsTotal, serversHealthy)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		OutcomesTotal:   outcomes,
		AttemptDuration: attemptDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ServersHealthy:  serversHealthy,
	}
}

// IncAttempt counts one attempt in the named round.
func (m *Metrics) IncAttempt(round string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(round).Inc()
}

// IncOutcome counts one terminal outcome kind.
func (m *Metrics) IncOutcome(kind string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind).Inc()
}

// ObserveAttempt records one attempt duration.
func (m *Metrics) ObserveAttempt(d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptDuration.Observe(d.Seconds())
}

// AddRetries counts targets resubmitted into a retry round.
func (m *Metrics) AddRetries(n int) {
	if m == nil {
		return
	}
	m.RetriesTotal.Add(float64(n))
}

// IncError counts one attempt error by type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetServersHealthy records the probe result.
func (m *Metrics) SetServersHealthy(n int) {
	if m == nil {
		return
	}
	m.ServersHealthy.Set(float64(n))
}
