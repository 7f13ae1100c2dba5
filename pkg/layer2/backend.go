package layer2

import (
	"context"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/sign"
)

// Stage is a point in an operation's life on the layer-2 network.
type Stage uint8

const (
	// StageCommitted: accepted into a pending block.
	StageCommitted Stage = iota
	// StageVerified: the block's validity proof was accepted on layer 1.
	StageVerified
)

func (s Stage) String() string {
	if s == StageVerified {
		return "verified"
	}
	return "committed"
}

// Account is the backend's view of a wallet.
type Account struct {
	ID         uint64
	Owner      string
	Registered bool
	// PublicKey is nil until a signing key is registered.
	PublicKey *babyjub.Point
	Nonce     uint64
	KeyNonce  uint64
}

// HasSigningKey reports whether key is the account's registered key.
func (a *Account) HasSigningKey(key *babyjub.Point) bool {
	return a != nil && a.PublicKey != nil && key != nil && a.PublicKey.Equal(key)
}

// RawReceipt is what a backend reports for a pending transaction.
type RawReceipt struct {
	TxHash      string
	BlockNumber uint64
	Committed   bool
	Verified    bool
}

// PendingTx is a submitted transaction that can be awaited.
type PendingTx interface {
	Hash() string
	// Await blocks until stage is reached, the transaction fails or ctx ends.
	Await(ctx context.Context, stage Stage) (RawReceipt, error)
}

// Backend is the per-wallet capability a vendor provides.
type Backend interface {
	// Address is the wallet's layer-1 address.
	Address() string
	// EnableSigning derives the wallet's layer-2 signing key. It may prompt
	// the wallet and is called once per executor.
	EnableSigning(ctx context.Context) (*babyjub.Point, error)
	GetAccount(ctx context.Context, address string) (*Account, error)
	RegisterSigningKey(ctx context.Context, accountID uint64, publicKey *babyjub.Point, feeToken string) (PendingTx, error)
	Submit(ctx context.Context, op Operation) (PendingTx, error)
}

// Provider is a vendor on one network.
type Provider interface {
	Name() string
	Description() string
	Vendor() Vendor
	Network() Network
	SupportedTokens(ctx context.Context) ([]string, error)
	// Wallet binds the provider to an Ethereum signer.
	Wallet(ctx context.Context, signer sign.Signer) (Backend, error)
	Close() error
}
