package optimistic

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics of coordinators.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "mohallaa").
	Namespace string

	// Subsystem is the metrics subsystem (default: "optimistic").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for commit duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics holds the Prometheus collectors shared by coordinators. A nil
// *Metrics records nothing.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	inflight       *prometheus.GaugeVec
}

// NewMetrics registers coordinator metrics. Call it once per registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "mohallaa"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "optimistic"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "outcomes_total",
			Help:        "Optimistic actions by coordinator and outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"coordinator", "outcome"}),

		commitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "commit_duration_seconds",
			Help:        "Time from commit start until the action resolved",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"coordinator"}),

		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "inflight",
			Help:        "Applied actions awaiting resolution",
			ConstLabels: cfg.ConstLabels,
		}, []string{"coordinator"}),
	}
}

func (m *Metrics) observeOutcome(coordinator string, o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(coordinator, o.String()).Inc()
}

func (m *Metrics) observeCommit(coordinator string, d time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.WithLabelValues(coordinator).Observe(d.Seconds())
}

func (m *Metrics) addInflight(coordinator string, delta float64) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(coordinator).Add(delta)
}
