package todo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the store metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "tada").
	Namespace string

	// Subsystem is the metrics subsystem (default: "todo").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// MetricsOption configures the store metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// Metrics counts what the store does with snapshots and mutations.
type Metrics struct {
	SnapshotsApplied prometheus.Counter
	SnapshotsStale   prometheus.Counter
	SnapshotErrors   prometheus.Counter
	Mutations        *prometheus.CounterVec
	Items            prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "tada", Subsystem: "todo"}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(reg)
	return &Metrics{
		SnapshotsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "snapshots_applied_total",
			Help:        "Snapshots that replaced the visible list.",
			ConstLabels: cfg.ConstLabels,
		}),
		SnapshotsStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "snapshots_stale_total",
			Help:        "Snapshots discarded because their subscription was superseded.",
			ConstLabels: cfg.ConstLabels,
		}),
		SnapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "snapshot_errors_total",
			Help:        "Live query deliveries that carried an error.",
			ConstLabels: cfg.ConstLabels,
		}),
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "mutations_total",
			Help:        "Mutations sent to the document store by kind and result.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op", "result"}),
		Items: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "items",
			Help:        "Items in the visible list.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *Metrics) mutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}
