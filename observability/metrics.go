package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the credit engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	creditsUtilized   prometheus.Counter
	creditsRestored   prometheus.Counter
	conflictRetries   prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_operations_total",
				Help: "Total ledger operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		creditsUtilized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_credit_utilized_total",
				Help: "Total credit amount consumed by trip links.",
			},
		),
		creditsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_credit_restored_total",
				Help: "Total credit amount restored by unlinks.",
			},
		),
		conflictRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_balance_conflicts_total",
				Help: "Optimistic balance updates rejected by a concurrent writer.",
			},
		),
	}
}

// ObserveOperation records one completed operation with its duration.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// AddUtilized accumulates the monetary amount consumed by a link.
func (m *Metrics) AddUtilized(amount float64) {
	m.creditsUtilized.Add(amount)
}

// AddRestored accumulates the monetary amount returned by an unlink.
func (m *Metrics) AddRestored(amount float64) {
	m.creditsRestored.Add(amount)
}

// IncrConflict counts a rejected optimistic balance write.
func (m *Metrics) IncrConflict() {
	m.conflictRetries.Inc()
}
