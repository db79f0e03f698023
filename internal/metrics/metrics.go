// Package metrics provides Prometheus metrics for the client backend.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Upstream targets.
const (
	TargetProxy   = "proxy"
	TargetBackend = "backend"
)

// Dispatch results.
const (
	ResultOK             = "ok"
	ResultHTTPError      = "http_error"
	ResultTransportError = "transport_error"
	ResultCanceled       = "canceled"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	DispatchTotal    *prometheus.CounterVec
	DispatchInFlight prometheus.Gauge
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authrator_http_requests_total",
			Help: "Total inbound HTTP requests from the panel.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrator_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authrator_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrator_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds by target.",
			Buckets: defaultBuckets,
		}, []string{"target", "method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authrator_upstream_responses_total",
			Help: "Total upstream responses by target, method and status code.",
		}, []string{"target", "method", "status_code"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authrator_dispatch_total",
			Help: "Requests dispatched through the proxy by result.",
		}, []string{"result"}),

		DispatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authrator_dispatch_in_flight",
			Help: "Number of sends currently waiting on the proxy.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.DispatchTotal,
		m.DispatchInFlight,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{
	"/api/state",
	"/api/auth",
	"/api/collections",
	"/api/apis",
	"/api/send",
	"/api/build",
	"/healthz",
	"/status",
	"/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
