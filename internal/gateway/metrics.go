// ABOUTME: Prometheus collectors for the gateway's request and tool-invocation surfaces.
// ABOUTME: Registered on a private registry so tests can run side by side.

package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics bundles the gateway's Prometheus collectors.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	authFailedTotal  prometheus.Counter
	invocationsTotal *prometheus.CounterVec
	invokeDuration   prometheus.Histogram
}

// newMetrics creates and registers the collectors.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ember_gateway_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_gateway_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		authFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ember_gateway_auth_failures_total",
			Help: "Requests rejected by authentication.",
		}),
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ember_gateway_tool_invocations_total",
			Help: "Tool invocations by outcome (not_found, failed, succeeded).",
		}, []string{"outcome"}),
		invokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ember_gateway_tool_invoke_duration_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.rateLimitedTotal,
		m.authFailedTotal,
		m.invocationsTotal,
		m.invokeDuration,
	)
	return m
}

// handler returns the scrape endpoint handler.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
