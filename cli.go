package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stablepay/layer2/pkg/layer2"
	"github.com/stablepay/layer2/pkg/loopring"
	"github.com/stablepay/layer2/pkg/sign"
)

const defaultExportDir = "csv_export"

type command struct {
	name        string
	usage       string
	description string
	run         func(ctx context.Context, a *App, args []string) error
}

var errUsage = errors.New("usage")

func commandList() []command {
	return []command{
		{"key", "key", "Derive the layer-2 signing key and show its registration", runKey},
		{"tokens", "tokens", "List the tokens of the configured network", runTokens},
		{"deposit", "deposit -amount <n> [-token ETH] [-to <addr>] [-fee <n>] [-approve] [-wait none|committed|verified]", "Deposit from layer 1", runOperation(layer2.OperationDeposit)},
		{"transfer", "transfer -to <addr> -amount <n> [-token ETH] [-fee <n>] [-wait none|committed|verified]", "Transfer to another layer-2 account", runOperation(layer2.OperationTransfer)},
		{"withdraw", "withdraw -to <addr> -amount <n> [-token ETH] [-fee <n>] [-wait none|committed|verified]", "Withdraw to layer 1", runOperation(layer2.OperationWithdrawal)},
		{"receipt", "receipt <id> [-wait committed|verified]", "Wait for a journaled operation", runReceipt},
		{"journal", "journal [-status <s,...>] [-limit <n>]", "List journaled operations", runJournal},
		{"status", "status", "Count journaled operations by status", runStatus},
		{"export", "export [-dir <path>] [-status <s,...>]", "Export the journal as CSV", runExport},
		{"watch", "watch", "Serve metrics, track receipts and follow account events until interrupted", runWatch},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commandList() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: layer2 <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commandList() {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.description)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "shell", "Start an interactive shell")
}

// runCommand dispatches one command line.
func (a *App) runCommand(ctx context.Context, name string, args []string) error {
	c, ok := findCommand(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	err := c.run(ctx, a, args)
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return err
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runKey(ctx context.Context, a *App, _ []string) error {
	return a.PrintKey(ctx)
}

func runTokens(ctx context.Context, a *App, _ []string) error {
	return a.PrintTokens(ctx)
}

type operationFlags struct {
	op   layer2.Operation
	wait WaitMode
}

// parseOperationFlags builds an operation of opType from command flags.
func parseOperationFlags(opType layer2.OperationType, args []string, out io.Writer) (operationFlags, error) {
	fs := newFlagSet(string(opType), out)
	to := fs.String("to", "", "recipient address")
	amount := fs.String("amount", "", "amount in token units")
	fee := fs.String("fee", "", "fee in token units")
	token := fs.String("token", layer2.DefaultToken, "token symbol")
	wait := fs.String("wait", string(WaitCommitted), "none, committed or verified")
	var approve *bool
	if opType == layer2.OperationDeposit {
		approve = fs.Bool("approve", false, "approve the ERC-20 allowance first")
	}
	if err := fs.Parse(args); err != nil {
		return operationFlags{}, err
	}
	if *amount == "" {
		return operationFlags{}, errUsage
	}
	mode, err := parseWaitMode(*wait)
	if err != nil {
		return operationFlags{}, err
	}

	symbol := strings.ToUpper(*token)
	var op layer2.Operation
	switch opType {
	case layer2.OperationDeposit:
		op = layer2.NewTokenDeposit(layer2.DepositParams{
			Params:          layer2.Params{ToAddress: *to, Amount: *amount, Fee: *fee, TokenSymbol: symbol},
			ApproveForERC20: *approve,
		})
	case layer2.OperationTransfer:
		op = layer2.NewTransfer(layer2.Params{ToAddress: *to, Amount: *amount, Fee: *fee, TokenSymbol: symbol})
	case layer2.OperationWithdrawal:
		op = layer2.NewWithdrawal(layer2.Params{ToAddress: *to, Amount: *amount, Fee: *fee, TokenSymbol: symbol})
	default:
		return operationFlags{}, fmt.Errorf("%w: %s", layer2.ErrInvalidOperation, opType)
	}
	return operationFlags{op: op, wait: mode}, nil
}

func runOperation(opType layer2.OperationType) func(ctx context.Context, a *App, args []string) error {
	return func(ctx context.Context, a *App, args []string) error {
		parsed, err := parseOperationFlags(opType, args, a.out)
		if err != nil {
			return err
		}
		// deposits default to the sender's own layer-2 account
		if parsed.op.ToAddress == "" && opType == layer2.OperationDeposit {
			signer, err := a.loadSigner()
			if err != nil {
				return err
			}
			parsed.op.ToAddress = sign.AddressOf(signer).Hex()
		}
		if err := parsed.op.Validate(); err != nil {
			return err
		}

		record, err := a.RunOperation(ctx, parsed.op, parsed.wait)
		if record != nil {
			a.PrintRecord(record)
		}
		return err
	}
}

func runReceipt(ctx context.Context, a *App, args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return errUsage
	}
	fs := newFlagSet("receipt", a.out)
	wait := fs.String("wait", string(WaitVerified), "committed or verified")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	mode, err := parseWaitMode(*wait)
	if err != nil {
		return err
	}
	if mode == WaitNone {
		mode = WaitCommitted
	}

	record, err := a.TrackRecord(ctx, args[0], mode)
	if record != nil {
		a.PrintRecord(record)
	}
	return err
}

func parseStatuses(s string) ([]RecordStatus, error) {
	if s == "" {
		return nil, nil
	}
	var statuses []RecordStatus
	for _, part := range strings.Split(s, ",") {
		status := RecordStatus(strings.ToLower(strings.TrimSpace(part)))
		switch status {
		case RecordPending, RecordSubmitted, RecordCommitted, RecordVerified, RecordFailed:
			statuses = append(statuses, status)
		default:
			return nil, fmt.Errorf("unknown record status %q", part)
		}
	}
	return statuses, nil
}

func runJournal(_ context.Context, a *App, args []string) error {
	fs := newFlagSet("journal", a.out)
	status := fs.String("status", "", "comma separated statuses")
	limit := fs.Int("limit", 50, "maximum number of records")
	wallet := fs.String("wallet", "", "only records of this wallet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	statuses, err := parseStatuses(*status)
	if err != nil {
		return err
	}
	return a.PrintJournal(RecordFilter{Wallet: *wallet, Statuses: statuses, Limit: *limit})
}

func runStatus(_ context.Context, a *App, _ []string) error {
	return a.PrintStatus()
}

func runExport(_ context.Context, a *App, args []string) error {
	fs := newFlagSet("export", a.out)
	dir := fs.String("dir", defaultExportDir, "output directory")
	status := fs.String("status", "", "comma separated statuses")
	wallet := fs.String("wallet", "", "only records of this wallet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	statuses, err := parseStatuses(*status)
	if err != nil {
		return err
	}

	fileName, err := NewJournalExporter(a.db).ExportToFile(*dir, RecordFilter{Wallet: *wallet, Statuses: statuses})
	if err != nil {
		return err
	}
	a.logger.Info("successfully exported journal", "file", fileName)
	return nil
}

// runWatch serves metrics, keeps the receipt worker running and follows the
// account stream until ctx is done.
func runWatch(ctx context.Context, a *App, _ []string) error {
	tracker, err := a.tracker(ctx)
	if err != nil {
		return err
	}

	metricsEndpoint := "/metrics"
	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    a.cfg.app.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		a.logger.Info("Prometheus metrics available", "listenAddr", a.cfg.app.MetricsAddr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failure", "error", err)
		}
	}()

	worker := NewReceiptWorker(a.db, tracker, a.cfg.app.ReceiptWait, a.metrics, a.logger)
	go worker.Start(ctx, a.cfg.app.WorkerTick)
	go a.metrics.RecordMetricsPeriodically(ctx, a.db, a.cfg.app.WorkerTick, a.logger)

	if w, ok := tracker.(*loopring.Wallet); ok {
		streamCfg := loopring.DefaultStreamConfig
		streamCfg.EventChanSize = a.cfg.app.StreamBufSize
		events, err := w.AccountEvents(ctx, streamCfg)
		if err != nil {
			a.logger.Warn("account stream unavailable", "error", err)
		} else {
			go a.followAccount(events)
		}
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shut down metrics server", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) followAccount(events <-chan loopring.AccountEvent) {
	logger := a.logger.WithName("account")
	for ev := range events {
		a.metrics.ObserveAccountEvent(ev)
		logger.Info("balance updated", "tokenId", ev.TokenID, "total", ev.TotalAmount, "locked", ev.AmountLocked)
	}
}
