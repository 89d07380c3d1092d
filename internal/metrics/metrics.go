// Package metrics exposes Prometheus instrumentation for Gatehouse.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	accessDecisions *prometheus.CounterVec
	sessionsIssued  prometheus.Counter
	sweepRuns       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates and registers the Gatehouse collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		accessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "access_decisions_total",
			Help:      "Access check verdicts by outcome and denial reason.",
		}, []string{"outcome", "reason"}),
		sessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "sessions_issued_total",
			Help:      "Session tokens issued by successful logins.",
		}),
		sweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "housekeeping_sweeps_total",
			Help:      "Housekeeping sweep attempts by result.",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
	}
}

// RecordDecision counts one access check verdict.
// Satisfies the evaluator's DecisionRecorder interface.
func (m *Metrics) RecordDecision(allowed bool, reason string) {
	if allowed {
		m.accessDecisions.WithLabelValues("allow", "").Inc()
		return
	}
	m.accessDecisions.WithLabelValues("deny", reason).Inc()
}

// RecordSessionIssued counts one successful login.
func (m *Metrics) RecordSessionIssued() {
	m.sessionsIssued.Inc()
}

// RecordSweep counts one housekeeping sweep attempt.
// result is "ok", "skipped" (lock held elsewhere) or "error".
func (m *Metrics) RecordSweep(result string) {
	m.sweepRuns.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts one handled request.
func (m *Metrics) RecordHTTPRequest(method, statusClass string) {
	m.httpRequests.WithLabelValues(method, statusClass).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
