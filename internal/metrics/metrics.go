// Package metrics holds the Prometheus collectors of the edge router: inbound
// traffic split by route kind, calls to the chat backend, and requests that
// ended at the error boundary.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Chat answers can take tens of seconds, so the buckets reach a minute.
var latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Metrics is the router's collector set on its own registry. The admin
// listener exposes Registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Inbound, labelled method/status_code/route.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Chat backend calls.
	BackendDuration  *prometheus.HistogramVec
	BackendResponses *prometheus.CounterVec

	// Failure kinds mapped by the error boundary.
	Failures *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_edge_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_edge_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: latencyBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_edge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_edge_backend_request_duration_seconds",
			Help:    "Chat backend call latency in seconds.",
			Buckets: latencyBuckets,
		}, []string{"method"}),

		BackendResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_edge_backend_responses_total",
			Help: "Total chat backend responses by method and status code.",
		}, []string{"method", "status_code"}),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_edge_failures_total",
			Help: "Requests that ended in an error response, by failure kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.BackendDuration,
		m.BackendResponses,
		m.Failures,
	)

	return m
}

// ObserveRequest records one finished inbound request.
func (m *Metrics) ObserveRequest(method string, status int, route string, d time.Duration) {
	method = NormalizeMethod(method)
	code := strconv.Itoa(status)
	m.RequestsTotal.WithLabelValues(method, code, route).Inc()
	m.RequestDuration.WithLabelValues(method, code, route).Observe(d.Seconds())
}

// ObserveBackend records one call to the chat backend. status is 0 when the
// call failed before a response arrived; only the latency is recorded then.
// It is a no-op on a nil receiver.
func (m *Metrics) ObserveBackend(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	method = NormalizeMethod(method)
	m.BackendDuration.WithLabelValues(method).Observe(d.Seconds())
	if status != 0 {
		m.BackendResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}

// RecordFailure counts a request mapped to an error response. It is a no-op
// on a nil receiver.
func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(kind).Inc()
}

// knownMethods bounds the method label; anything else is "other".
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns method when it is a standard HTTP method and
// "other" otherwise. Chat and asset routes accept any method, so the raw
// value cannot be used as a label.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}
