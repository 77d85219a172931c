// Package metrics exposes Prometheus collectors for the matching service and
// its HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reddrop"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiInflight  prometheus.Gauge
	matchRuns    *prometheus.CounterVec
	matchLatency *prometheus.HistogramVec
	candidates   *prometheus.HistogramVec
	excluded     *prometheus.CounterVec
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	responses    *prometheus.CounterVec
	ingestTasks  *prometheus.CounterVec
}

// New builds and registers every collector, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by method/route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_requests_inflight",
			Help:      "API requests currently being served.",
		}),
		matchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_runs_total",
			Help:      "Match computations by candidate kind and outcome.",
		}, []string{"kind", "outcome"}),
		matchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent computing one ranked candidate list.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"kind"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_candidates",
			Help:      "Number of ranked candidates returned per match.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}, []string{"kind"}),
		excluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_excluded_total",
			Help:      "Candidates dropped from a match because of bad records.",
		}, []string{"reason"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donor_reservations_total",
			Help:      "Donor reservation attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Blood request status changes by target status.",
		}, []string{"status"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_responses_total",
			Help:      "Donor answers to matches by response.",
		}, []string{"response"}),
		ingestTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_tasks_total",
			Help:      "Bulk ingest tasks by entity and outcome.",
		}, []string{"entity", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.matchRuns, m.matchLatency, m.candidates, m.excluded,
		m.reservations, m.transitions, m.responses, m.ingestTasks,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) InflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) InflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveMatch records one engine run. outcome is "ok" or "error".
func (m *Metrics) ObserveMatch(kind, outcome string, candidates int, dur time.Duration) {
	if m == nil {
		return
	}
	m.matchRuns.WithLabelValues(kind, outcome).Inc()
	m.matchLatency.WithLabelValues(kind).Observe(dur.Seconds())
	if outcome == "ok" {
		m.candidates.WithLabelValues(kind).Observe(float64(candidates))
	}
}

func (m *Metrics) ObserveExcluded(reason string) {
	if m == nil {
		return
	}
	m.excluded.WithLabelValues(reason).Inc()
}

// ObserveReservation records "reserved", "conflict" or "error".
func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ObserveResponse records a donor's "accepted" or "declined" answer.
func (m *Metrics) ObserveResponse(response string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(response).Inc()
}

func (m *Metrics) ObserveIngest(entity string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ingestTasks.WithLabelValues(entity, outcome).Inc()
}
