package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "mohallaa").
	Namespace string

	// Subsystem is the metrics subsystem (default: "http").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "mohallaa",
		Subsystem: "http",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the HTTP metrics. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streams         prometheus.Gauge
	wsErrors        *prometheus.CounterVec
}

// NewMetrics registers the HTTP metrics.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		// Stream metrics live outside the http subsystem.
		streams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "change_streams",
			Help:        "Number of open change feed streams",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "websocket_errors_total",
			Help:        "Total change feed WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// Handler records every request. The route label is the chi route pattern
// so that path parameters do not explode label cardinality.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, r.Method, statusClass(rec.status)).Inc()
	})
}

// StreamOpened records a new change feed stream.
func (m *Metrics) StreamOpened() {
	if m != nil {
		m.streams.Inc()
	}
}

// StreamClosed records a closed change feed stream.
func (m *Metrics) StreamClosed() {
	if m != nil {
		m.streams.Dec()
	}
}

// RecordWebSocketError records a change feed error.
func (m *Metrics) RecordWebSocketError(errorType string) {
	if m != nil {
		m.wsErrors.WithLabelValues(errorType).Inc()
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// statusRecorder captures the response status. It forwards Hijack so that
// WebSocket upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
