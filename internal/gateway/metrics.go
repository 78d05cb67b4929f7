package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the pipeline. Each service
// instance owns its registry so tests stay independent.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejectionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rejections_total",
				Help: "Requests rejected by the protection pipeline, by guard",
			},
			[]string{"guard"},
		),
	}

	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.rejectionsTotal)
	return m
}

// RecordRequest records one completed request, attributing rejections to
// the guard implied by the status code.
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	switch statusCode {
	case http.StatusUnauthorized:
		m.rejectionsTotal.WithLabelValues("authentication").Inc()
	case http.StatusForbidden:
		m.rejectionsTotal.WithLabelValues("authorization").Inc()
	case http.StatusTooManyRequests:
		m.rejectionsTotal.WithLabelValues("rate_limit").Inc()
	case http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		m.rejectionsTotal.WithLabelValues("request_validation").Inc()
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
