package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "judgebox"

// Metrics records execution outcomes, durations and session counts
type Metrics struct {
	registry *prometheus.Registry

	executions     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	builds         prometheus.Counter
}

// New creates Metrics registered on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of executions by language and outcome",
			},
			[]string{"language", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "End-to-end execution duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"language"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of session containers currently alive",
			},
		),
		builds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provision_builds_total",
				Help:      "Total number of environment image builds",
			},
		),
	}
}

// ObserveExecution records one finished execution
func (m *Metrics) ObserveExecution(language, outcome string, duration time.Duration) {
	m.executions.WithLabelValues(language, outcome).Inc()
	m.duration.WithLabelValues(language).Observe(duration.Seconds())
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

// ImageBuilt counts an environment build
func (m *Metrics) ImageBuilt() {
	m.builds.Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
