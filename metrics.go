package main

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
	"github.com/stablepay/layer2/pkg/loopring"
)

// Metrics are the collectors of the long-running commands. Executor metrics
// live in layer2.Metrics.
type Metrics struct {
	Executor *layer2.Metrics

	JournalRecords *prometheus.GaugeVec
	AccountEvents  *prometheus.CounterVec
	TokenBalance   *prometheus.GaugeVec
	WorkerRuns     *prometheus.CounterVec
}

// NewMetrics initializes and registers Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Executor: layer2.NewMetricsWithRegistry(registry),
		JournalRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "layer2_journal_records",
			Help: "Journaled operations by status",
		}, []string{"status"}),
		AccountEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "layer2_account_events_total",
			Help: "Account updates received from the exchange stream",
		}, []string{"token_id"}),
		TokenBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "layer2_token_balance",
			Help: "Last total amount reported for a token, in base units",
		}, []string{"token_id"}),
		WorkerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "layer2_receipt_worker_records_total",
			Help: "Journal records processed by the receipt worker by outcome",
		}, []string{"outcome"}),
	}
}

// RecordMetricsPeriodically refreshes the journal gauges until ctx is done.
func (m *Metrics) RecordMetricsPeriodically(ctx context.Context, db *gorm.DB, interval time.Duration, logger log.Logger) {
	logger = logger.WithName("metrics")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.UpdateJournalMetrics(db, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateJournalMetrics(db, logger)
		}
	}
}

func (m *Metrics) UpdateJournalMetrics(db *gorm.DB, logger log.Logger) {
	counts, err := CountByStatus(db)
	if err != nil {
		logger.Warn("failed to count journal records", "error", err)
		return
	}
	for _, status := range []RecordStatus{RecordPending, RecordSubmitted, RecordCommitted, RecordVerified, RecordFailed} {
		m.JournalRecords.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// ObserveAccountEvent counts ev and records its balance when it parses.
func (m *Metrics) ObserveAccountEvent(ev loopring.AccountEvent) {
	tokenID := strconv.FormatUint(uint64(ev.TokenID), 10)
	m.AccountEvents.WithLabelValues(tokenID).Inc()
	if total, err := strconv.ParseFloat(ev.TotalAmount, 64); err == nil {
		m.TokenBalance.WithLabelValues(tokenID).Set(total)
	}
}
