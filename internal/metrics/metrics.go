// ABOUTME: Prometheus collectors for HTTP traffic, authentication, model calls and assistant turns
// ABOUTME: All recording methods are safe on a nil *Metrics so instrumentation can be disabled

// Package metrics holds the service's Prometheus instrumentation.
//
// Collectors are registered on the Registerer passed to New, so tests can use
// a private registry and the binary can use the default one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kisanmitra"

// Metrics groups every collector the service records to.
type Metrics struct {
	// Labels: route, code
	HTTPRequests *prometheus.CounterVec
	// Labels: route
	HTTPDuration *prometheus.HistogramVec
	// Labels: reason (missing, invalid, expired, unknown_principal, disabled, internal)
	AuthFailures *prometheus.CounterVec
	// Labels: provider, op (complete, stream, generate_json), outcome (ok, error, cancelled)
	ModelCalls *prometheus.CounterVec
	// Labels: provider, op
	ModelDuration *prometheus.HistogramVec
	// Labels: mode (blocking, stream), outcome
	AssistantTurns *prometheus.CounterVec

	SummaryRefreshFailures prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers all collectors on reg. A nil reg uses the
// Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentication attempts by reason.",
		}, []string{"reason"}),
		ModelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model calls by provider, operation and outcome.",
		}, []string{"provider", "op", "outcome"}),
		ModelDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Language model call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "op"}),
		AssistantTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_turns_total",
			Help:      "Assistant turns by mode and outcome.",
		}, []string{"mode", "outcome"}),
		SummaryRefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_refresh_failures_total",
			Help:      "Rolling summary refreshes that failed and kept the prior summary.",
		}),
		gatherer: gatherer,
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// AuthFailure implements auth.FailureRecorder.
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// ModelCall implements llm.Observer.
func (m *Metrics) ModelCall(provider, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(provider, op, outcome).Inc()
	m.ModelDuration.WithLabelValues(provider, op).Observe(elapsed.Seconds())
}

// AssistantTurn records a completed or failed turn.
func (m *Metrics) AssistantTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.AssistantTurns.WithLabelValues(mode, outcome).Inc()
}

// SummaryRefreshFailed counts a best-effort summary refresh that failed.
func (m *Metrics) SummaryRefreshFailed() {
	if m == nil {
		return
	}
	m.SummaryRefreshFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
