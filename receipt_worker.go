package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
	"github.com/stablepay/layer2/pkg/loopring"
)

const (
	// recordBatchSize determines how many journal records are checked per tick
	recordBatchSize = 20

	// maxTrackRetries is how many failed checks a record gets before it is failed
	maxTrackRetries = 5
)

// Tracker resumes waiting on a submitted operation.
type Tracker interface {
	Address() string
	Track(ctx context.Context, opType layer2.OperationType, hash string) (layer2.PendingTx, error)
}

// ReceiptWorker moves journal records of one wallet towards verified.
type ReceiptWorker struct {
	db      *gorm.DB
	tracker Tracker
	wait    time.Duration
	metrics *Metrics
	logger  log.Logger
}

func NewReceiptWorker(db *gorm.DB, tracker Tracker, wait time.Duration, metrics *Metrics, logger log.Logger) *ReceiptWorker {
	return &ReceiptWorker{
		db:      db,
		tracker: tracker,
		wait:    wait,
		metrics: metrics,
		logger:  logger.WithName("receipt-worker"),
	}
}

// Start processes outstanding records every tick until ctx is done.
func (w *ReceiptWorker) Start(ctx context.Context, tick time.Duration) {
	w.logger.Info("receipt worker started", "wallet", w.tracker.Address())
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	w.ProcessRecords(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("receipt worker stopped")
			return
		case <-ticker.C:
			w.ProcessRecords(ctx)
		}
	}
}

// ProcessRecords checks one batch of submitted and committed records.
func (w *ReceiptWorker) ProcessRecords(ctx context.Context) {
	records, err := ListRecords(w.db, RecordFilter{
		Wallet:   w.tracker.Address(),
		Statuses: []RecordStatus{RecordSubmitted, RecordCommitted},
		Limit:    recordBatchSize,
	})
	if err != nil {
		w.logger.Error("failed to list outstanding records", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	w.logger.Debug("processing batch of records", "count", len(records))
	for i := range records {
		if ctx.Err() != nil {
			w.logger.Info("context cancelled, stopping batch processing")
			return
		}
		w.processRecord(ctx, &records[i])
	}
}

func (w *ReceiptWorker) processRecord(ctx context.Context, record *OperationRecord) {
	logger := w.logger.
		WithKV("id", record.ID.String()).
		WithKV("type", record.Type).
		WithKV("txHash", record.TxHash).
		WithKV("attempt", record.Retries)

	outcome, err := w.advance(ctx, record)
	if err == nil {
		w.observe(outcome)
		logger.Info("record advanced", "status", record.Status, "block", record.BlockNumber)
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		w.observe("waiting")
		logger.Debug("receipt not ready yet")
	case errors.Is(err, loopring.ErrTxFailed):
		w.observe("failed")
		logger.Warn("transaction failed", "error", err)
		if failErr := record.Fail(w.db, err.Error()); failErr != nil {
			logger.Error("failed to mark record as failed", "error", failErr)
		}
	case record.Retries >= maxTrackRetries:
		w.observe("failed")
		logger.Warn("record failed after reaching max retries", "error", err)
		finalErr := fmt.Errorf("failed after %d retries: %w", record.Retries, err)
		if failErr := record.Fail(w.db, finalErr.Error()); failErr != nil {
			logger.Error("failed to mark record as failed", "error", failErr)
		}
	default:
		w.observe("retry")
		logger.Error("receipt check failed, will retry later", "error", err)
		if recordErr := record.RecordAttempt(w.db, err.Error()); recordErr != nil {
			logger.Error("failed to record failed attempt", "error", recordErr)
		}
	}
}

// advance waits up to w.wait for the next stage of record and saves it.
func (w *ReceiptWorker) advance(ctx context.Context, record *OperationRecord) (string, error) {
	op, err := record.Operation()
	if err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.wait)
	defer cancel()

	pending, err := w.tracker.Track(waitCtx, record.Type, record.TxHash)
	if err != nil {
		return "", err
	}

	committedNow := false
	if record.Status == RecordSubmitted {
		raw, err := pending.Await(waitCtx, layer2.StageCommitted)
		if err != nil {
			return "", err
		}
		receipt := layer2.NewReceipt(op, raw)
		if raw.Verified {
			return "verified", record.Verified(w.db, receipt)
		}
		if err := record.Committed(w.db, receipt); err != nil {
			return "", err
		}
		committedNow = true
	}

	raw, err := pending.Await(waitCtx, layer2.StageVerified)
	if err != nil {
		if committedNow && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "committed", nil
		}
		return "", err
	}
	return "verified", record.Verified(w.db, layer2.NewReceipt(op, raw))
}

func (w *ReceiptWorker) observe(outcome string) {
	if w.metrics != nil {
		w.metrics.WorkerRuns.WithLabelValues(outcome).Inc()
	}
}
