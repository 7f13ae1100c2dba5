package layer2

import (
	"context"
	"sync"
	"time"
)

// Receipt is the caller-facing outcome of an operation.
type Receipt struct {
	OperationType OperationType `json:"operationType"`
	To            string        `json:"to"`
	TxHash        string        `json:"txHash,omitempty"`
	BlockNumber   uint64        `json:"blockNumber"`
	Committed     bool          `json:"committed"`
	Verified      bool          `json:"verified"`
	TokenSymbol   string        `json:"tokenSymbol"`
}

// NewReceipt maps a backend receipt onto the operation that produced it.
func NewReceipt(op Operation, raw RawReceipt) Receipt {
	return Receipt{
		OperationType: op.Type,
		To:            op.ToAddress,
		TxHash:        raw.TxHash,
		BlockNumber:   raw.BlockNumber,
		Committed:     raw.Committed,
		Verified:      raw.Verified,
		TokenSymbol:   op.TokenSymbol,
	}
}

// Result is the handle returned by a successful submission. Both receipt
// accessors share the one PendingTx and remember their first successful
// answer; failed waits are not remembered so they can be retried.
type Result struct {
	op      Operation
	pending PendingTx
	metrics *Metrics

	committed stageWaiter
	verified  stageWaiter
}

type stageWaiter struct {
	mu      sync.Mutex
	done    bool
	receipt Receipt
	call    *stageCall
}

// stageCall is one in-flight Await shared by every concurrent caller. It is
// cancelled once the last caller gives up.
type stageCall struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	receipt Receipt
	err     error
}

func NewResult(op Operation, pending PendingTx, metrics *Metrics) *Result {
	return &Result{op: op, pending: pending, metrics: metrics}
}

func (r *Result) Operation() Operation { return r.op }

// TxHash is the backend's transaction identifier.
func (r *Result) TxHash() string { return r.pending.Hash() }

// Receipt waits for the committed stage.
func (r *Result) Receipt(ctx context.Context) (Receipt, error) {
	return r.wait(ctx, &r.committed, StageCommitted)
}

// ReceiptVerified waits for the verified stage, which can take much longer.
func (r *Result) ReceiptVerified(ctx context.Context) (Receipt, error) {
	return r.wait(ctx, &r.verified, StageVerified)
}

func (r *Result) wait(ctx context.Context, w *stageWaiter, stage Stage) (Receipt, error) {
	w.mu.Lock()
	if w.done {
		receipt := w.receipt
		w.mu.Unlock()
		return receipt, nil
	}
	call := w.call
	if call == nil {
		awaitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &stageCall{done: make(chan struct{}), cancel: cancel}
		w.call = call
		go r.await(awaitCtx, w, call, stage)
	}
	call.waiters++
	w.mu.Unlock()

	select {
	case <-call.done:
		return call.receipt, call.err
	case <-ctx.Done():
		w.mu.Lock()
		call.waiters--
		if call.waiters == 0 && w.call == call {
			w.call = nil
			call.cancel()
		}
		w.mu.Unlock()
		return Receipt{}, ctx.Err()
	}
}

func (r *Result) await(ctx context.Context, w *stageWaiter, call *stageCall, stage Stage) {
	defer call.cancel()

	start := time.Now()
	raw, err := r.pending.Await(ctx, stage)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer close(call.done)

	if w.call == call {
		w.call = nil
	}
	if err != nil {
		call.err = err
		return
	}
	r.metrics.observeReceiptWait(stage, time.Since(start))

	if raw.TxHash == "" {
		raw.TxHash = r.pending.Hash()
	}
	w.receipt = NewReceipt(r.op, raw)
	w.done = true
	call.receipt = w.receipt
}
