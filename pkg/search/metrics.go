package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures search metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "mohallaa").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics holds per-source search collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers search metrics.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "mohallaa"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "search",
			Name:      "source_queries_total",
			Help:      "Source queries by kind and status",
		}, []string{"kind", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "search",
			Name:      "source_duration_seconds",
			Help:      "Source query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(kind Kind, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queries.WithLabelValues(string(kind), status).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
}
