package layer2

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the executor collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Operations  *prometheus.CounterVec
	Submissions *prometheus.CounterVec
	Unlocks     *prometheus.CounterVec
	ReceiptWait *prometheus.HistogramVec
}

// NewMetrics registers on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers on registry, or the default one when nil.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "layer2_operations_total",
			Help: "Executed operations by type and outcome",
		}, []string{"type", "outcome"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "layer2_submissions_total",
			Help: "Backend submission attempts by operation type",
		}, []string{"type"}),
		Unlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "layer2_unlocks_total",
			Help: "Account unlock attempts by outcome",
		}, []string{"outcome"}),
		ReceiptWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "layer2_receipt_wait_seconds",
			Help:    "Time spent waiting for a receipt stage",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage"}),
	}
}

func (m *Metrics) operation(t OperationType, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) submission(t OperationType) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) unlock(outcome string) {
	if m == nil {
		return
	}
	m.Unlocks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeReceiptWait(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.ReceiptWait.WithLabelValues(stage.String()).Observe(d.Seconds())
}
