// Package metrics exposes Prometheus collectors for simulations and exports.
//
// All methods are safe on a nil *Metrics so callers that run without a
// registry (the CLI, most tests) need no guards.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "winterstorm"

// Simulation outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeDidNotConverge = "did_not_converge"
	OutcomeError          = "error"
)

type Metrics struct {
	reg *prometheus.Registry

	simulations        *prometheus.CounterVec
	simulationMonths   prometheus.Histogram
	simulationDuration prometheus.Histogram
	exports            *prometheus.CounterVec
	exportJobs         *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		simulations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Payoff simulations by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		simulationMonths: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_months",
			Help:      "Months until all debts are paid, for converged simulations.",
			Buckets:   []float64{6, 12, 24, 36, 60, 120, 240, 480, 1200},
		}),
		simulationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time spent simulating.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Timeline exports by backend and outcome.",
		}, []string{"backend", "outcome"}),
		exportJobs: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "export_jobs",
			Help:      "Export outbox jobs by status.",
		}, []string{"status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveSimulation(strategy, outcome string, months int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(strategy, outcome).Inc()
	m.simulationDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.simulationMonths.Observe(float64(months))
	}
}

func (m *Metrics) ObserveExport(backend string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.exports.WithLabelValues(backend, outcome).Inc()
}

// SetExportJobs publishes outbox counts keyed by status.
func (m *Metrics) SetExportJobs(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.exportJobs.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) ObserveRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
