package loopring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/eddsa"
	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
	"github.com/stablepay/layer2/pkg/sign"
)

// offchainValidity is how long signed transfers and withdrawals stay valid.
const offchainValidity = 60 * 24 * time.Hour

const codeAccountNotFound = 101002

var _ layer2.Backend = (*Wallet)(nil)

// ErrSigningNotEnabled is returned when an operation needs the layer-2 key
// before EnableSigning derived it.
var ErrSigningNotEnabled = errors.New("layer-2 signing is not enabled")

// Wallet is a Loopring account controlled by an Ethereum signer.
type Wallet struct {
	provider *Provider
	signer   sign.Signer
	address  string
	logger   log.Logger
	now      func() time.Time

	mu        sync.Mutex
	key       *eddsa.KeyPair
	accountID uint64
	apiKey    string
}

func newWallet(p *Provider, signer sign.Signer) *Wallet {
	address := sign.AddressOf(signer).Hex()
	return &Wallet{
		provider: p,
		signer:   signer,
		address:  address,
		logger:   p.logger.WithKV("wallet", address),
		now:      time.Now,
	}
}

func (w *Wallet) Address() string { return w.address }

// KeyPair returns the derived layer-2 key, or nil before EnableSigning.
func (w *Wallet) KeyPair() *eddsa.KeyPair {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// EnableSigning derives the layer-2 key from a wallet signature over the
// exchange address and the account's key nonce.
func (w *Wallet) EnableSigning(ctx context.Context) (*babyjub.Point, error) {
	var keyNonce uint64
	info, err := w.provider.client.Account(ctx, w.address)
	switch {
	case err == nil:
		keyNonce = info.KeyNonce
	case isAccountNotFound(err):
		// new accounts start at key nonce zero
	default:
		return nil, err
	}

	key, err := eddsa.DeriveKeyPair(ctx, sign.MessageSigner{Signer: w.signer}, keyNetworkLabel, w.provider.info.ExchangeAddress, keyNonce)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.key = key
	w.apiKey = ""
	w.mu.Unlock()

	w.logger.Info("layer-2 signing enabled", "publicKeyX", key.PublicKeyXHex())
	return key.Public, nil
}

// GetAccount maps the exchange account of address.
func (w *Wallet) GetAccount(ctx context.Context, address string) (*layer2.Account, error) {
	info, err := w.provider.client.Account(ctx, address)
	if err != nil {
		if isAccountNotFound(err) {
			return nil, &layer2.UnknownAccountError{Address: address}
		}
		return nil, err
	}

	pub, err := info.PublicKey.Point()
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", info.AccountID, err)
	}
	return &layer2.Account{
		ID:         info.AccountID,
		Owner:      info.Owner,
		Registered: info.AccountID != 0,
		PublicKey:  pub,
		Nonce:      info.Nonce,
		KeyNonce:   info.KeyNonce,
	}, nil
}

// RegisterSigningKey submits an account update setting publicKey, paying the
// fee in feeToken. The returned PendingTx resolves once the exchange reports
// the new key.
func (w *Wallet) RegisterSigningKey(ctx context.Context, accountID uint64, publicKey *babyjub.Point, feeToken string) (layer2.PendingTx, error) {
	key := w.KeyPair()
	if key == nil {
		return nil, ErrSigningNotEnabled
	}
	if !key.Public.Equal(publicKey) {
		return nil, errors.New("public key does not match the derived signing key")
	}

	account, err := w.GetAccount(ctx, w.address)
	if err != nil {
		return nil, err
	}
	token, err := w.provider.Token(ctx, feeToken)
	if err != nil {
		return nil, err
	}
	maxFee, err := layer2.BaseUnits(w.provider.unlockMaxFee, token.Decimals)
	if err != nil {
		return nil, fmt.Errorf("unlock fee: %w", err)
	}

	info := w.provider.info
	req := UpdateAccountRequest{
		Exchange:  info.ExchangeAddress,
		Owner:     w.address,
		AccountID: accountID,
		PublicKey: PublicKey{
			X: eddsa.XPad64(key.PublicKeyXHex()),
			Y: eddsa.XPad64(key.PublicKeyYHex()),
		},
		MaxFee:     TokenVolume{TokenID: token.TokenID, Volume: maxFee.String()},
		ValidUntil: accountUpdateValidUntil,
		Nonce:      account.Nonce,
	}

	sig, err := SignAccountUpdate(w.signer, info, req, publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", layer2.ErrExternalSigningFailure, err)
	}

	res, err := w.provider.client.UpdateAccount(ctx, req, sig.String())
	if err != nil {
		return nil, err
	}
	w.logger.Info("account update submitted", "accountId", accountID, "hash", res.Hash, "status", res.Status)

	return &pendingTx{
		hash:     res.Hash,
		interval: w.provider.pollInterval,
		status: func(ctx context.Context) (*TxStatus, error) {
			acc, err := w.GetAccount(ctx, w.address)
			if err != nil {
				return nil, err
			}
			if !acc.HasSigningKey(publicKey) {
				return nil, ErrTxNotFound
			}
			return &TxStatus{Hash: res.Hash, Status: StatusProcessed}, nil
		},
	}, nil
}

// Submit sends op. Deposits go through the layer-1 exchange contract;
// transfers and withdrawals are signed with the layer-2 key and need an
// unlocked account.
func (w *Wallet) Submit(ctx context.Context, op layer2.Operation) (layer2.PendingTx, error) {
	token, err := w.provider.Token(ctx, op.TokenSymbol)
	if err != nil {
		return nil, err
	}
	amount, err := op.AmountUnits(token.Decimals)
	if err != nil {
		return nil, err
	}

	switch op.Type {
	case layer2.OperationDeposit:
		eth, err := w.provider.ethBackend(ctx)
		if err != nil {
			return nil, err
		}
		depositor := NewDepositor(eth, w.signer, w.provider.info)
		tx, err := depositor.Deposit(ctx, token, common.HexToAddress(op.ToAddress), amount, op.ApproveForERC20)
		if err != nil {
			return nil, err
		}
		w.logger.Info("deposit sent", "hash", tx.Hash().Hex(), "token", token.Symbol)
		return newDepositPending(depositor, w.provider.client, w.depositSession, tx.Hash(), w.provider.pollInterval), nil

	case layer2.OperationTransfer, layer2.OperationWithdrawal:
		return w.submitOffchain(ctx, op, token, amount.String())

	default:
		return nil, fmt.Errorf("%w: unsupported operation type %q", layer2.ErrInvalidOperation, op.Type)
	}
}

func (w *Wallet) submitOffchain(ctx context.Context, op layer2.Operation, token Token, volume string) (layer2.PendingTx, error) {
	apiKey, accountID, err := w.session(ctx)
	if err != nil {
		return nil, err
	}
	fee, err := op.FeeUnits(token.Decimals)
	if err != nil {
		return nil, err
	}
	storage, err := w.provider.client.StorageID(ctx, apiKey, accountID, token.TokenID)
	if err != nil {
		return nil, err
	}

	key := w.KeyPair()
	info := w.provider.info
	validUntil := uint64(w.now().Add(offchainValidity).Unix())
	client := w.provider.client

	var (
		res  *TxResponse
		kind TxKind
	)
	switch op.Type {
	case layer2.OperationTransfer:
		var payeeID uint64
		if payee, err := client.Account(ctx, op.ToAddress); err == nil {
			payeeID = payee.AccountID
		} else if !isAccountNotFound(err) {
			return nil, err
		}

		req := TransferRequest{
			Exchange:   info.ExchangeAddress,
			PayerID:    accountID,
			PayerAddr:  w.address,
			PayeeID:    payeeID,
			PayeeAddr:  op.ToAddress,
			Token:      TokenVolume{TokenID: token.TokenID, Volume: volume},
			MaxFee:     TokenVolume{TokenID: token.TokenID, Volume: fee.String()},
			StorageID:  storage.OffchainID,
			ValidUntil: validUntil,
		}
		if req.EdDSASignature, err = SignPayload(key, w.provider.scheme, req); err != nil {
			return nil, err
		}
		kind = TxKindTransfer
		res, err = client.SubmitTransfer(ctx, apiKey, req)
		if err != nil {
			return nil, err
		}

	case layer2.OperationWithdrawal:
		req := WithdrawalRequest{
			Exchange:   info.ExchangeAddress,
			AccountID:  accountID,
			Owner:      w.address,
			Token:      TokenVolume{TokenID: token.TokenID, Volume: volume},
			MaxFee:     TokenVolume{TokenID: token.TokenID, Volume: fee.String()},
			StorageID:  storage.OffchainID,
			ValidUntil: validUntil,
			To:         op.ToAddress,
			ExtraData:  "0x",
		}
		if req.EdDSASignature, err = SignPayload(key, w.provider.scheme, req); err != nil {
			return nil, err
		}
		kind = TxKindWithdrawal
		res, err = client.SubmitWithdrawal(ctx, apiKey, req)
		if err != nil {
			return nil, err
		}
	}

	w.logger.Info("offchain request submitted", "kind", string(kind), "hash", res.Hash, "status", res.Status)
	return &pendingTx{
		hash:     res.Hash,
		interval: w.provider.pollInterval,
		status: func(ctx context.Context) (*TxStatus, error) {
			return client.TxStatus(ctx, apiKey, kind, accountID, res.Hash)
		},
	}, nil
}

// Track resumes waiting on an operation submitted earlier, for example by a
// previous run. Transfers and withdrawals need the account unlocked.
func (w *Wallet) Track(ctx context.Context, opType layer2.OperationType, hash string) (layer2.PendingTx, error) {
	switch opType {
	case layer2.OperationDeposit:
		eth, err := w.provider.ethBackend(ctx)
		if err != nil {
			return nil, err
		}
		depositor := NewDepositor(eth, w.signer, w.provider.info)
		return newDepositPending(depositor, w.provider.client, w.depositSession, common.HexToHash(hash), w.provider.pollInterval), nil

	case layer2.OperationTransfer, layer2.OperationWithdrawal:
		if w.KeyPair() == nil {
			if _, err := w.EnableSigning(ctx); err != nil {
				return nil, err
			}
		}
		apiKey, accountID, err := w.session(ctx)
		if err != nil {
			return nil, err
		}
		kind := TxKindTransfer
		if opType == layer2.OperationWithdrawal {
			kind = TxKindWithdrawal
		}
		client := w.provider.client
		return &pendingTx{
			hash:     hash,
			interval: w.provider.pollInterval,
			status: func(ctx context.Context) (*TxStatus, error) {
				return client.TxStatus(ctx, apiKey, kind, accountID, hash)
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported operation type %q", layer2.ErrInvalidOperation, opType)
	}
}

// session returns the API key and account id, fetching them once the
// account carries the derived key. A missing key means the account is locked.
func (w *Wallet) session(ctx context.Context) (string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.apiKey != "" {
		return w.apiKey, w.accountID, nil
	}
	if w.key == nil {
		return "", 0, ErrSigningNotEnabled
	}

	client := w.provider.client
	info, err := client.Account(ctx, w.address)
	if err != nil {
		if isAccountNotFound(err) {
			return "", 0, &layer2.UnknownAccountError{Address: w.address}
		}
		return "", 0, err
	}
	pub, err := info.PublicKey.Point()
	if err != nil {
		return "", 0, err
	}
	if pub == nil || !pub.Equal(w.key.Public) {
		return "", 0, fmt.Errorf("%w: %s", layer2.ErrAccountLocked, w.address)
	}

	apiKey, err := client.APIKey(ctx, info.AccountID, w.key, w.provider.scheme)
	if err != nil {
		return "", 0, err
	}
	w.apiKey = apiKey
	w.accountID = info.AccountID
	return apiKey, info.AccountID, nil
}

// depositSession is session for deposit tracking, which may run before the
// layer-2 key was ever derived in this process.
func (w *Wallet) depositSession(ctx context.Context) (string, uint64, error) {
	apiKey, accountID, err := w.session(ctx)
	if !errors.Is(err, ErrSigningNotEnabled) {
		return apiKey, accountID, err
	}
	if _, err := w.EnableSigning(ctx); err != nil {
		return "", 0, err
	}
	return w.session(ctx)
}

// AccountEvents streams balance updates of the unlocked account until ctx
// is cancelled.
func (w *Wallet) AccountEvents(ctx context.Context, cfg StreamConfig) (<-chan AccountEvent, error) {
	apiKey, _, err := w.session(ctx)
	if err != nil {
		return nil, err
	}
	stream := NewAccountStream(w.provider.info.WSEndpoint, w.provider.client.WSKey, apiKey, cfg)
	return stream.Subscribe(log.SetContextLogger(ctx, w.logger)), nil
}

func isAccountNotFound(err error) bool {
	var reqErr *layer2.BackendRequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Code == codeAccountNotFound ||
		reqErr.StatusCode == http.StatusNotFound ||
		strings.Contains(strings.ToLower(reqErr.Message), "account not found")
}
