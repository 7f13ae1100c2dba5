package loopring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stablepay/layer2/pkg/layer2"
)

// DefaultPollInterval is how often pending transactions are refreshed.
const DefaultPollInterval = 5 * time.Second

// ErrTxFailed is returned when the backend reports a failed transaction.
var ErrTxFailed = errors.New("transaction failed")

type statusFunc func(ctx context.Context) (*TxStatus, error)

// pendingTx polls a history endpoint until the requested stage is reached.
type pendingTx struct {
	hash     string
	interval time.Duration
	status   statusFunc
	// l1Wait, when set, must succeed before the layer-2 status is polled. A
	// mined layer-1 transaction counts as committed.
	l1Wait func(ctx context.Context) (uint64, error)
}

func (p *pendingTx) Hash() string { return p.hash }

func (p *pendingTx) Await(ctx context.Context, stage layer2.Stage) (layer2.RawReceipt, error) {
	var l1Block uint64
	if p.l1Wait != nil {
		block, err := p.l1Wait(ctx)
		if err != nil {
			return layer2.RawReceipt{}, err
		}
		l1Block = block
		if stage == layer2.StageCommitted {
			return layer2.RawReceipt{TxHash: p.hash, BlockNumber: l1Block, Committed: true}, nil
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		st, err := p.status(ctx)
		switch {
		case err == nil:
			receipt, done, err := stageReached(st, stage)
			if err != nil {
				return layer2.RawReceipt{}, err
			}
			if done {
				receipt.TxHash = p.hash
				if l1Block != 0 {
					receipt.BlockNumber = l1Block
				}
				return receipt, nil
			}
		case errors.Is(err, ErrTxNotFound):
			// not indexed yet
		default:
			return layer2.RawReceipt{}, err
		}

		select {
		case <-ctx.Done():
			return layer2.RawReceipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// stageReached maps a backend status onto the receipt stages: processing
// means committed, processed means verified.
func stageReached(st *TxStatus, stage layer2.Stage) (layer2.RawReceipt, bool, error) {
	receipt := layer2.RawReceipt{BlockNumber: st.BlockID}
	if st.BlockNumber != 0 {
		receipt.BlockNumber = st.BlockNumber
	}

	switch st.Status {
	case StatusFailed:
		return receipt, false, fmt.Errorf("%w: %s", ErrTxFailed, st.Hash)
	case StatusProcessed:
		receipt.Committed = true
		receipt.Verified = true
	case StatusProcessing:
		receipt.Committed = true
	}

	if stage == layer2.StageVerified {
		return receipt, receipt.Verified, nil
	}
	return receipt, receipt.Committed, nil
}

// newDepositPending waits for the layer-1 deposit and then for the exchange
// to credit it.
func newDepositPending(d *Depositor, c *Client, apiKey func(context.Context) (string, uint64, error), hash common.Hash, interval time.Duration) *pendingTx {
	return &pendingTx{
		hash:     hash.Hex(),
		interval: interval,
		l1Wait: func(ctx context.Context) (uint64, error) {
			receipt, err := d.WaitMined(ctx, hash)
			if err != nil {
				return 0, err
			}
			return receipt.BlockNumber.Uint64(), nil
		},
		status: func(ctx context.Context) (*TxStatus, error) {
			key, accountID, err := apiKey(ctx)
			if err != nil {
				// The deposit history needs an API key. Until the account
				// carries a signing key the credit cannot be observed yet.
				var unknown *layer2.UnknownAccountError
				if errors.Is(err, layer2.ErrAccountLocked) || errors.As(err, &unknown) {
					return nil, fmt.Errorf("%w: %s: %v", ErrTxNotFound, hash.Hex(), err)
				}
				return nil, err
			}
			return c.TxStatus(ctx, key, TxKindDeposit, accountID, hash.Hex())
		},
	}
}
