package loopring

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stablepay/layer2/pkg/sign"
)

const exchangeABIJSON = `[{"type":"function","name":"deposit","stateMutability":"payable","inputs":[
	{"name":"from","type":"address"},
	{"name":"to","type":"address"},
	{"name":"tokenAddress","type":"address"},
	{"name":"amount","type":"uint96"},
	{"name":"extraData","type":"bytes"}],"outputs":[]}]`

const erc20ABIJSON = `[{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
	{"name":"spender","type":"address"},
	{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

var (
	exchangeABI = mustParseABI(exchangeABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)

	maxUint96 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EthBackend is the layer-1 node interface deposits need.
type EthBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Depositor moves funds from layer 1 into the exchange.
type Depositor struct {
	backend  EthBackend
	signer   sign.Signer
	chainID  *big.Int
	exchange *bind.BoundContract
	spender  common.Address
}

func NewDepositor(backend EthBackend, signer sign.Signer, info NetworkInfo) *Depositor {
	exchangeAddr := common.HexToAddress(info.ExchangeAddress)
	return &Depositor{
		backend:  backend,
		signer:   signer,
		chainID:  new(big.Int).SetUint64(info.ChainID),
		exchange: bind.NewBoundContract(exchangeAddr, exchangeABI, backend, backend, backend),
		spender:  common.HexToAddress(info.Spender()),
	}
}

// Deposit sends the exchange deposit transaction. ETH is sent as value; for
// other tokens approve first sends an allowance for amount and waits for it
// to be mined.
func (d *Depositor) Deposit(ctx context.Context, token Token, to common.Address, amount *big.Int, approve bool) (*types.Transaction, error) {
	if amount.Sign() <= 0 || amount.Cmp(maxUint96) > 0 {
		return nil, fmt.Errorf("deposit amount %s out of range", amount)
	}

	from := sign.AddressOf(d.signer)
	opts, err := d.txOpts(ctx)
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(token.Address)
	if token.IsEther() {
		tokenAddr = common.Address{}
		opts.Value = amount
	} else if approve {
		if err := d.approve(ctx, tokenAddr, amount); err != nil {
			return nil, err
		}
	}

	tx, err := d.exchange.Transact(opts, "deposit", from, to, tokenAddr, amount, []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to send deposit: %w", err)
	}
	return tx, nil
}

func (d *Depositor) approve(ctx context.Context, tokenAddr common.Address, amount *big.Int) error {
	opts, err := d.txOpts(ctx)
	if err != nil {
		return err
	}

	token := bind.NewBoundContract(tokenAddr, erc20ABI, d.backend, d.backend, d.backend)
	tx, err := token.Transact(opts, "approve", d.spender, amount)
	if err != nil {
		return fmt.Errorf("failed to approve allowance: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, d.backend, tx.Hash())
	if err != nil {
		return fmt.Errorf("failed to wait for approval: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.New("approval transaction reverted")
	}
	return nil
}

// WaitMined blocks until tx is included and returns its receipt.
func (d *Depositor) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, d.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deposit transaction %s reverted", hash.Hex())
	}
	return receipt, nil
}

func (d *Depositor) txOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts := signerTxOpts(d.signer, d.chainID)
	opts.Context = ctx

	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	opts.GasPrice = gasPrice
	return opts, nil
}

// signerTxOpts signs layer-1 transactions with a sign.Signer.
func signerTxOpts(signer sign.Signer, chainID *big.Int) *bind.TransactOpts {
	signingMethod := types.LatestSignerForChainID(chainID)
	signerAddress := sign.AddressOf(signer)
	signerFn := func(address common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if address != signerAddress {
			return nil, bind.ErrNotAuthorized
		}

		sig, err := signer.Sign(signingMethod.Hash(tx).Bytes())
		if err != nil {
			return nil, err
		}
		raw := append([]byte(nil), sig...)
		if raw[64] >= 27 {
			raw[64] -= 27
		}

		return tx.WithSignature(signingMethod, raw)
	}

	return &bind.TransactOpts{
		From:    signerAddress,
		Signer:  signerFn,
		Context: context.Background(),
	}
}
