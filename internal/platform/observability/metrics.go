package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry exposed on /metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	orderEvents     *prometheus.CounterVec
	sequenceLatency prometheus.Histogram
}

// NewMetrics registers the service collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		orderEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_events_total",
				Help: "Order lifecycle events by type and resulting status",
			},
			[]string{"event", "status"},
		),
		sequenceLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orders_sequence_next_seconds",
				Help:    "Latency of tracking sequence increments",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.orderEvents,
		m.sequenceLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// OrderEvent counts an order lifecycle event such as created or updated.
func (m *Metrics) OrderEvent(event, status string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(event, status).Inc()
}

// ObserveSequence records how long a counter increment took.
func (m *Metrics) ObserveSequence(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sequenceLatency.Observe(elapsed.Seconds())
}
