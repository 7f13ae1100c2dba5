package layer2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stablepay/layer2/pkg/babyjub"
	"github.com/stablepay/layer2/pkg/log"
)

const tracerName = "github.com/stablepay/layer2/pkg/layer2"

// Executor submits operations for one wallet. On the first execution it
// derives the wallet's layer-2 signing key; when a submission is rejected
// because the account is locked it registers that key and retries once.
//
// Executions are serialized, so a wallet is never unlocked twice at the same
// time.
type Executor struct {
	backend  Backend
	logger   log.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	feeToken string

	mu        sync.Mutex
	publicKey *babyjub.Point
	unlocked  atomic.Bool
}

type ExecutorOption func(*Executor)

func WithLogger(lg log.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = lg }
}

func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithUnlockFeeToken sets the token the key registration fee is paid in.
func WithUnlockFeeToken(symbol string) ExecutorOption {
	return func(e *Executor) { e.feeToken = symbol }
}

func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

func NewExecutor(backend Backend, opts ...ExecutorOption) *Executor {
	e := &Executor{
		backend:  backend,
		logger:   log.NewNoopLogger(),
		feeToken: DefaultToken,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.logger = e.logger.WithName("executor").WithKV("wallet", backend.Address())
	return e
}

// Unlocked reports whether this executor has registered the wallet's
// signing key.
func (e *Executor) Unlocked() bool {
	return e.unlocked.Load()
}

// Execute validates and submits op. Errors other than a locked account are
// returned unchanged. A locked account triggers one unlock and one retry; if
// either fails the original submission error is returned.
func (e *Executor) Execute(ctx context.Context, op Operation) (*Result, error) {
	if err := op.Validate(); err != nil {
		e.metrics.operation(op.Type, "invalid")
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "layer2.execute", trace.WithAttributes(
		attribute.String("operation.type", string(op.Type)),
		attribute.String("operation.token", op.TokenSymbol),
		attribute.String("wallet", e.backend.Address()),
	))
	defer span.End()

	ctx = log.SetContextLogger(ctx, e.logger.WithKV("operation", op.Type))
	logger := log.FromContext(ctx)

	pending, err := e.execute(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.operation(op.Type, "failed")
		logger.Warn("operation failed", "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("tx.hash", pending.Hash()))
	e.metrics.operation(op.Type, "submitted")
	logger.Info("operation submitted", "hash", pending.Hash())
	return NewResult(op, pending, e.metrics), nil
}

func (e *Executor) execute(ctx context.Context, op Operation) (PendingTx, error) {
	logger := log.FromContext(ctx)

	if e.publicKey == nil {
		pub, err := e.backend.EnableSigning(ctx)
		if err != nil {
			return nil, err
		}
		e.publicKey = pub
		logger.Debug("signing enabled", "publicKey", pub.String())
	}

	pending, err := e.submit(ctx, op)
	if err == nil {
		return pending, nil
	}
	if !IsAccountLocked(err) {
		return nil, err
	}

	logger.Info("account is locked, registering signing key", "error", err)
	if unlockErr := e.unlock(ctx); unlockErr != nil {
		var unknown *UnknownAccountError
		if errors.As(unlockErr, &unknown) {
			e.metrics.unlock("unknown_account")
			return nil, unlockErr
		}
		e.metrics.unlock("failed")
		logger.Error("failed to unlock account", "error", unlockErr)
		return nil, err
	}
	e.metrics.unlock("succeeded")

	pending, retryErr := e.submit(ctx, op)
	if retryErr != nil {
		logger.Error("retry after unlock failed", "error", retryErr)
		return nil, err
	}
	return pending, nil
}

func (e *Executor) submit(ctx context.Context, op Operation) (PendingTx, error) {
	trace.SpanFromContext(ctx).AddEvent("submit", trace.WithAttributes(attribute.Bool("unlocked", e.unlocked.Load())))
	log.FromContext(ctx).Debug("submitting operation", "unlocked", e.unlocked.Load())

	e.metrics.submission(op.Type)
	return e.backend.Submit(ctx, op)
}

func (e *Executor) unlock(ctx context.Context) error {
	address := e.backend.Address()
	account, err := e.backend.GetAccount(ctx, address)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.Registered || account.ID == 0 {
		return &UnknownAccountError{Address: address}
	}

	if account.HasSigningKey(e.publicKey) {
		e.unlocked.Store(true)
		return nil
	}

	pending, err := e.backend.RegisterSigningKey(ctx, account.ID, e.publicKey, e.feeToken)
	if err != nil {
		return fmt.Errorf("register signing key: %w", err)
	}
	if _, err := pending.Await(ctx, StageCommitted); err != nil {
		return fmt.Errorf("await signing key registration: %w", err)
	}

	e.unlocked.Store(true)
	log.FromContext(ctx).Info("signing key registered", "accountId", account.ID)
	return nil
}
