package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gorm.io/gorm"

	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/log"
	"github.com/stablepay/layer2/pkg/loopring"
	"github.com/stablepay/layer2/pkg/sign"
)

// WaitMode selects how long an operation command blocks after submission.
type WaitMode string

const (
	WaitNone      WaitMode = "none"
	WaitCommitted WaitMode = "committed"
	WaitVerified  WaitMode = "verified"
)

func parseWaitMode(s string) (WaitMode, error) {
	switch m := WaitMode(strings.ToLower(s)); m {
	case WaitNone, WaitCommitted, WaitVerified:
		return m, nil
	}
	return "", fmt.Errorf("invalid wait mode %q (none, committed or verified)", s)
}

// App wires configuration, providers and the journal for the commands.
type App struct {
	cfg      *Config
	logger   log.Logger
	registry *layer2.Registry
	metrics  *Metrics
	db       *gorm.DB
	out      io.Writer

	signer   sign.Signer
	backend  layer2.Backend
	executor *layer2.Executor
}

func NewApp(cfg *Config, db *gorm.DB, metrics *Metrics, out io.Writer, logger log.Logger) *App {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: layer2.NewRegistry(),
		metrics:  metrics,
		db:       db,
		out:      out,
	}
	a.registry.Register(layer2.VendorLoopring, a.loopringFactory())
	return a
}

// Close releases every provider built so far.
func (a *App) Close() error {
	return a.registry.Close()
}

func (a *App) loopringFactory() layer2.Factory {
	return func(ctx context.Context, network layer2.Network) (layer2.Provider, error) {
		opts := []loopring.Option{
			loopring.WithLogger(a.logger),
			loopring.WithScheme(a.cfg.scheme),
			loopring.WithPollInterval(a.cfg.app.PollInterval),
			loopring.WithUnlockMaxFee(a.cfg.app.UnlockMaxFee),
			loopring.WithHTTP(&http.Client{Timeout: a.cfg.app.HTTPTimeout}),
		}
		override, hasOverride := a.cfg.networks.Override(layer2.VendorLoopring, network)
		if hasOverride {
			opts = append(opts, loopring.WithNetworkInfo(override))
		}

		p, err := loopring.NewProvider(network, opts...)
		if err != nil {
			return nil, err
		}
		if hasOverride && override.EthRPC != "" {
			if err := checkChainID(ctx, override.EthRPC, p.Info().ChainID); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}

func (a *App) provider(ctx context.Context) (layer2.Provider, error) {
	return a.registry.Provider(ctx, a.cfg.vendor, string(a.cfg.network))
}

func (a *App) loadSigner() (sign.Signer, error) {
	if a.signer != nil {
		return a.signer, nil
	}
	key, err := a.cfg.privateKey()
	if err != nil {
		return nil, err
	}
	signer, err := sign.NewEthereumSigner(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise signer: %w", err)
	}
	a.signer = signer
	return signer, nil
}

func (a *App) wallet(ctx context.Context) (layer2.Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	provider, err := a.provider(ctx)
	if err != nil {
		return nil, err
	}
	signer, err := a.loadSigner()
	if err != nil {
		return nil, err
	}
	backend, err := provider.Wallet(ctx, signer)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	return backend, nil
}

// tracker returns the wallet as a Tracker when the vendor can resume
// waiting on a submitted transaction.
func (a *App) tracker(ctx context.Context) (Tracker, error) {
	backend, err := a.wallet(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := backend.(Tracker)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot track transactions", layer2.ErrUnsupportedVendor, a.cfg.vendor)
	}
	return t, nil
}

// loopringWallet is needed for the account stream and key derivation.
func (a *App) loopringWallet(ctx context.Context) (*loopring.Wallet, error) {
	backend, err := a.wallet(ctx)
	if err != nil {
		return nil, err
	}
	w, ok := backend.(*loopring.Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: %s", layer2.ErrUnsupportedVendor, a.cfg.vendor)
	}
	return w, nil
}

// getExecutor keeps one executor per process so a wallet is unlocked once.
func (a *App) getExecutor(ctx context.Context) (*layer2.Executor, layer2.Backend, error) {
	backend, err := a.wallet(ctx)
	if err != nil {
		return nil, nil, err
	}
	if a.executor == nil {
		var executorMetrics *layer2.Metrics
		if a.metrics != nil {
			executorMetrics = a.metrics.Executor
		}
		a.executor = layer2.NewExecutor(backend,
			layer2.WithLogger(a.logger),
			layer2.WithMetrics(executorMetrics),
			layer2.WithUnlockFeeToken(a.cfg.app.FeeToken),
		)
	}
	return a.executor, backend, nil
}

// RunOperation journals op, executes it and waits according to mode.
func (a *App) RunOperation(ctx context.Context, op layer2.Operation, mode WaitMode) (*OperationRecord, error) {
	executor, backend, err := a.getExecutor(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.logger.WithKV("type", op.Type).WithKV("token", op.TokenSymbol)

	record, err := CreateRecord(a.db, a.cfg.vendor, a.cfg.network, backend.Address(), op)
	if err != nil {
		return nil, fmt.Errorf("failed to journal operation: %w", err)
	}
	logger = logger.WithKV("id", record.ID.String())

	result, err := executor.Execute(ctx, op)
	if err != nil {
		if failErr := record.Fail(a.db, err.Error()); failErr != nil {
			logger.Error("failed to mark record as failed", "error", failErr)
		}
		return record, err
	}
	if err := record.Submitted(a.db, result.TxHash()); err != nil {
		return record, fmt.Errorf("failed to journal submission: %w", err)
	}
	logger.Info("operation submitted", "txHash", result.TxHash())

	if mode == WaitNone {
		return record, nil
	}

	receipt, err := result.Receipt(ctx)
	if err != nil {
		return record, a.waitFailed(record, err)
	}
	if err := record.Committed(a.db, receipt); err != nil {
		return record, err
	}
	logger.Info("operation committed", "block", receipt.BlockNumber)
	if mode == WaitCommitted {
		return record, nil
	}

	receipt, err = result.ReceiptVerified(ctx)
	if err != nil {
		return record, a.waitFailed(record, err)
	}
	if err := record.Verified(a.db, receipt); err != nil {
		return record, err
	}
	logger.Info("operation verified", "block", receipt.BlockNumber)
	return record, nil
}

// waitFailed fails the record only when the transaction itself failed.
// Other errors leave it for the receipt worker.
func (a *App) waitFailed(record *OperationRecord, err error) error {
	if errors.Is(err, loopring.ErrTxFailed) {
		if failErr := record.Fail(a.db, err.Error()); failErr != nil {
			a.logger.Error("failed to mark record as failed", "error", failErr)
		}
	}
	return err
}

// TrackRecord waits on a journaled record until it reaches mode.
func (a *App) TrackRecord(ctx context.Context, id string, mode WaitMode) (*OperationRecord, error) {
	record, err := GetRecord(a.db, id)
	if err != nil {
		return nil, err
	}
	if record.TxHash == "" {
		return record, fmt.Errorf("record %s was never submitted", id)
	}
	op, err := record.Operation()
	if err != nil {
		return record, err
	}
	tracker, err := a.tracker(ctx)
	if err != nil {
		return record, err
	}

	pending, err := tracker.Track(ctx, record.Type, record.TxHash)
	if err != nil {
		return record, err
	}
	stage := layer2.StageVerified
	if mode == WaitCommitted {
		stage = layer2.StageCommitted
	}
	raw, err := pending.Await(ctx, stage)
	if err != nil {
		return record, a.waitFailed(record, err)
	}

	receipt := layer2.NewReceipt(op, raw)
	if raw.Verified {
		return record, record.Verified(a.db, receipt)
	}
	return record, record.Committed(a.db, receipt)
}

// PrintTokens renders the tokens the provider lists.
func (a *App) PrintTokens(ctx context.Context) error {
	provider, err := a.provider(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetTitle(fmt.Sprintf("%s (%s)", provider.Name(), provider.Network()))

	if lp, ok := provider.(*loopring.Provider); ok {
		tokens, err := lp.Tokens(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"ID", "Symbol", "Name", "Decimals", "Address"})
		for _, tok := range tokens {
			t.AppendRow(table.Row{tok.TokenID, tok.Symbol, tok.Name, tok.Decimals, tok.Address})
		}
	} else {
		symbols, err := provider.SupportedTokens(ctx)
		if err != nil {
			return err
		}
		t.AppendHeader(table.Row{"Symbol"})
		for _, s := range symbols {
			t.AppendRow(table.Row{s})
		}
	}
	t.Render()
	return nil
}

// PrintKey derives the layer-2 key pair and prints its public half.
func (a *App) PrintKey(ctx context.Context) error {
	w, err := a.loopringWallet(ctx)
	if err != nil {
		return err
	}
	if _, err := w.EnableSigning(ctx); err != nil {
		return err
	}
	kp := w.KeyPair()

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.AppendRow(table.Row{"Address", w.Address()})
	t.AppendRow(table.Row{"PublicKeyX", kp.PublicKeyXHex()})
	t.AppendRow(table.Row{"PublicKeyY", kp.PublicKeyYHex()})

	account, err := w.GetAccount(ctx, w.Address())
	switch {
	case err == nil:
		t.AppendRow(table.Row{"AccountID", account.ID})
		t.AppendRow(table.Row{"KeyRegistered", account.HasSigningKey(kp.Public)})
	case isUnknownAccount(err):
		t.AppendRow(table.Row{"AccountID", "not registered"})
	default:
		return err
	}
	t.Render()
	return nil
}

func isUnknownAccount(err error) bool {
	var unknown *layer2.UnknownAccountError
	return errors.As(err, &unknown)
}

// PrintJournal renders journal records of the configured wallet.
func (a *App) PrintJournal(filter RecordFilter) error {
	records, err := ListRecords(a.db, filter)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.AppendHeader(table.Row{"ID", "Type", "Amount", "Token", "To", "Status", "Block", "Created"})
	t.AppendSeparator()
	for _, r := range records {
		t.AppendRow(table.Row{r.ID.String(), r.Type, r.Amount, r.TokenSymbol, r.ToAddress, r.Status, r.BlockNumber, r.CreatedAt.Format(time.RFC3339)})
	}
	t.Render()
	return nil
}

// PrintRecord renders one record and its receipt fields.
func (a *App) PrintRecord(record *OperationRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.AppendRow(table.Row{"ID", record.ID.String()})
	t.AppendRow(table.Row{"Type", record.Type})
	t.AppendRow(table.Row{"To", record.ToAddress})
	t.AppendRow(table.Row{"Amount", fmt.Sprintf("%s %s", record.Amount, record.TokenSymbol)})
	t.AppendRow(table.Row{"Fee", record.Fee})
	t.AppendRow(table.Row{"Status", record.Status})
	if record.TxHash != "" {
		t.AppendRow(table.Row{"TxHash", record.TxHash})
	}
	if record.BlockNumber != 0 {
		t.AppendRow(table.Row{"Block", record.BlockNumber})
	}
	if record.Error != "" {
		t.AppendRow(table.Row{"Error", record.Error})
	}
	t.Render()
}

// PrintStatus renders the journal counts.
func (a *App) PrintStatus() error {
	counts, err := CountByStatus(a.db)
	if err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.AppendHeader(table.Row{"Status", "Records"})
	for _, s := range statuses {
		t.AppendRow(table.Row{s, counts[RecordStatus(s)]})
	}
	t.Render()
	return nil
}
