package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"droplet/core/auth"
	"droplet/core/events"
	"droplet/core/state"
	"droplet/core/types"
	"droplet/crypto"
	"droplet/native/token"
	"droplet/native/wallet"
	"droplet/observability/logging"
	"droplet/observability/metrics"
	"droplet/storage"
)

var (
	ErrUnknownMethod   = errors.New("host: unknown method")
	ErrBadSignature    = errors.New("host: signature verification failed")
	ErrBadNonce        = errors.New("host: invalid nonce")
	ErrMissingArgument = errors.New("host: missing argument")

	errNilInvocation = errors.New("host: nil invocation")
	errNilDatabase   = errors.New("host: database not configured")
)

// Host executes signed invocations against a database. Every invocation runs
// inside a write overlay: it either commits as a single batch together with
// its events, or leaves no trace at all.
type Host struct {
	mu       sync.Mutex
	db       storage.Database
	limits   state.TTLLimits
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  *metrics.WalletMetrics
	tracer   trace.Tracer
	sequence func() uint32
	clock    func() time.Time
}

// NewHost creates a host over db. Instance lifetimes are bounded by limits.
func NewHost(db storage.Database, limits state.TTLLimits) *Host {
	return &Host{
		db:      db,
		limits:  limits,
		emitter: events.NoopEmitter{},
		logger:  logging.Discard(),
		tracer:  otel.Tracer("droplet/host"),
		clock:   time.Now,
	}
}

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (h *Host) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		h.emitter = events.NoopEmitter{}
		return
	}
	h.emitter = emitter
}

// SetLogger configures the invocation logger.
func (h *Host) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	h.logger = logger
}

// SetMetrics configures the metrics sink. A nil sink disables metrics.
func (h *Host) SetMetrics(m *metrics.WalletMetrics) { h.metrics = m }

// SetTracer overrides the tracer used for invocation spans. Passing nil
// restores the global provider's tracer.
func (h *Host) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		tracer = otel.Tracer("droplet/host")
	}
	h.tracer = tracer
}

// SetSequenceFunc overrides the ledger sequence source. By default each
// invocation runs one sequence after the last committed one.
func (h *Host) SetSequenceFunc(fn func() uint32) { h.sequence = fn }

func (h *Host) currentSequence() (uint32, error) {
	if h.sequence != nil {
		return h.sequence(), nil
	}
	last, err := state.NewManager(h.db, 0, h.limits).LastSequence()
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// execution bundles the per-invocation services bound to one overlay.
type execution struct {
	manager *state.Manager
	auth    *auth.Context
	ledger  *token.Ledger
	buffer  *events.Buffer
}

func newExecution(manager *state.Manager, self [20]byte, signers [][20]byte) *execution {
	exec := &execution{
		manager: manager,
		auth:    auth.NewContext(self, signers...),
		ledger:  token.NewLedger(),
		buffer:  &events.Buffer{},
	}
	exec.ledger.SetState(exec.manager)
	exec.ledger.SetAuthorizer(exec.auth)
	exec.ledger.SetEmitter(exec.buffer)
	return exec
}

func (exec *execution) wallet(self [20]byte) *wallet.Engine {
	engine := wallet.NewEngine(self)
	engine.SetStore(exec.manager.Instance(self))
	// Owner checks accept signatures only; custody moves go through the
	// ledger, which honours the wallet's own identity.
	engine.SetAuthorizer(exec.auth.Signed())
	engine.SetTokens(exec.ledger)
	engine.SetEmitter(exec.buffer)
	return engine
}

// Invoke executes inv atomically. The returned receipt is non-nil whenever
// the invocation reached execution; err reports why it did not commit.
func (h *Host) Invoke(ctx context.Context, inv *types.Invocation) (*types.Receipt, error) {
	if inv == nil {
		return nil, errNilInvocation
	}
	if h == nil || h.db == nil {
		return nil, errNilDatabase
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.clock()
	_, span := h.tracer.Start(ctx, "droplet.invoke", trace.WithAttributes(
		attribute.String("method", string(inv.Method)),
		attribute.String("contract", crypto.FormatContract(inv.Contract)),
	))
	defer span.End()

	receipt := &types.Receipt{Contract: inv.Contract, Method: inv.Method, Status: types.ReceiptFailed}
	if id, err := inv.ID(); err == nil {
		receipt.ID = id
	}
	committed, err := h.execute(inv, receipt)
	if err != nil {
		receipt.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		receipt.Status = types.ReceiptCommitted
		span.SetStatus(codes.Ok, "committed")
		h.observeCommitted(committed)
	}
	span.SetAttributes(attribute.Int64("sequence", int64(receipt.Sequence)))
	h.metrics.ObserveInvocation(string(inv.Method), receipt.Status.String(), h.clock().Sub(start))
	caller := "unsigned"
	if signer, err := inv.PrimarySigner(); err == nil {
		caller = crypto.FormatIdentity(signer)
	}
	h.logger.Info("invocation processed",
		slog.String("method", string(inv.Method)),
		slog.String("caller", caller),
		slog.String("contract", crypto.FormatContract(inv.Contract)),
		slog.Uint64("sequence", uint64(receipt.Sequence)),
		slog.String("status", receipt.Status.String()),
		slog.String("error", receipt.Error),
		slog.Int("events", len(receipt.Events)),
	)
	return receipt, err
}

func (h *Host) execute(inv *types.Invocation, receipt *types.Receipt) ([]events.Event, error) {
	sigs, err := inv.Signers()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	seq, err := h.currentSequence()
	if err != nil {
		return nil, err
	}
	receipt.Sequence = seq

	overlay := storage.NewOverlay(h.db)
	defer overlay.Close()

	manager := state.NewManager(overlay, seq, h.limits)
	signers := make([][20]byte, 0, len(sigs))
	for _, sig := range sigs {
		if err := manager.ConsumeNonce(sig.Signer, sig.Nonce); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadNonce, crypto.FormatIdentity(sig.Signer), err)
		}
		signers = append(signers, sig.Signer)
	}
	exec := newExecution(manager, inv.Contract, signers)

	if err := dispatch(exec, inv); err != nil {
		overlay.Discard()
		exec.buffer.Reset()
		return nil, err
	}
	if err := exec.manager.SetLastSequence(seq); err != nil {
		overlay.Discard()
		exec.buffer.Reset()
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		exec.buffer.Reset()
		return nil, fmt.Errorf("host: commit: %w", err)
	}
	emitted := exec.buffer.Events()
	receipt.Events = events.Render(emitted)
	exec.buffer.Flush(h.emitter)
	return emitted, nil
}

func dispatch(exec *execution, inv *types.Invocation) error {
	switch inv.Method {
	case types.MethodInit:
		var args types.InitArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		owner, err := decodeIdentity("owner", args.Owner)
		if err != nil {
			return err
		}
		return exec.wallet(inv.Contract).Init(owner)
	case types.MethodFund, types.MethodWithdraw:
		var args types.AmountArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		tok, err := decodeIdentity("token", args.Token)
		if err != nil {
			return err
		}
		if err := requireValue(inv.Method, "amount", args.Amount); err != nil {
			return err
		}
		if inv.Method == types.MethodFund {
			return exec.wallet(inv.Contract).Fund(tok, args.Amount)
		}
		return exec.wallet(inv.Contract).Withdraw(tok, args.Amount)
	case types.MethodTransfer:
		var args types.TransferArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		tok, err := decodeIdentity("token", args.Token)
		if err != nil {
			return err
		}
		to, err := decodeIdentity("to", args.To)
		if err != nil {
			return err
		}
		if err := requireValue(inv.Method, "amount", args.Amount); err != nil {
			return err
		}
		return exec.wallet(inv.Contract).Transfer(tok, to, args.Amount)
	case types.MethodSetupCharity:
		var args types.CharityArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		charity, err := decodeIdentity("charity", args.Charity)
		if err != nil {
			return err
		}
		if err := requireValue(inv.Method, "feeBps", args.FeeBps); err != nil {
			return err
		}
		return exec.wallet(inv.Contract).SetupCharity(charity, args.FeeBps)
	case types.MethodMint:
		var args types.MintArgs
		if err := inv.DecodeArgs(&args); err != nil {
			return err
		}
		to, err := decodeIdentity("to", args.To)
		if err != nil {
			return err
		}
		if err := requireValue(inv.Method, "amount", args.Amount); err != nil {
			return err
		}
		// The invoked contract is the token being minted; its admin must sign.
		return exec.ledger.Mint(inv.Contract, to, args.Amount)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, inv.Method)
	}
}

func requireValue(method types.Method, field string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s: %s", ErrMissingArgument, method, field)
	}
	return nil
}

func decodeIdentity(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("host: %s: %w", field, err)
	}
	return addr.Raw(), nil
}

func (h *Host) observeCommitted(emitted []events.Event) {
	if h.metrics == nil {
		return
	}
	for _, rendered := range events.Render(emitted) {
		var field string
		switch rendered.Type {
		case wallet.EventTypeTransferred:
			field = "net"
		case wallet.EventTypeDonated:
			field = "fee"
		default:
			continue
		}
		amount, ok := new(big.Int).SetString(rendered.Attributes[field], 10)
		if !ok {
			continue
		}
		tok := rendered.Attributes["token"]
		if rendered.Type == wallet.EventTypeDonated {
			h.metrics.ObserveDonated(tok, amount)
		} else {
			h.metrics.ObserveTransferred(tok, amount)
		}
	}
}

// RegisterToken creates a token administered by admin. It commits
// immediately and does not advance the ledger sequence.
func (h *Host) RegisterToken(tokenID, admin [20]byte) error {
	if h == nil || h.db == nil {
		return errNilDatabase
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	overlay := storage.NewOverlay(h.db)
	defer overlay.Close()
	ledger := token.NewLedger()
	ledger.SetState(state.NewManager(overlay, 0, h.limits))
	if err := ledger.Register(tokenID, admin); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		return err
	}
	h.logger.Info("token registered",
		slog.String("token", crypto.FormatContract(tokenID)),
		slog.String("admin", crypto.FormatIdentity(admin)))
	return nil
}

// Balance returns the committed holdings of holder in tokenID.
func (h *Host) Balance(tokenID, holder [20]byte) (*big.Int, error) {
	if h == nil || h.db == nil {
		return nil, errNilDatabase
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ledger := token.NewLedger()
	ledger.SetState(state.NewManager(h.db, 0, h.limits))
	return ledger.Balance(tokenID, holder)
}

// Nonce returns the last committed nonce of signer.
func (h *Host) Nonce(signer [20]byte) (uint64, error) {
	if h == nil || h.db == nil {
		return 0, errNilDatabase
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return state.NewManager(h.db, 0, h.limits).Nonce(signer)
}

// WalletInfo is a read-only snapshot of a wallet instance.
type WalletInfo struct {
	Owner       [20]byte
	Initialized bool
	Charity     *wallet.CharityConfig
	LiveUntil   uint32
}

// Wallet reads the committed state of the wallet at contract. Reads never
// extend the instance lifetime.
func (h *Host) Wallet(contract [20]byte) (*WalletInfo, error) {
	if h == nil || h.db == nil {
		return nil, errNilDatabase
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	seq, err := h.currentSequence()
	if err != nil {
		return nil, err
	}
	manager := state.NewManager(h.db, seq, h.limits)
	engine := wallet.NewEngine(contract)
	engine.SetStore(manager.Instance(contract))

	info := &WalletInfo{}
	info.Owner, info.Initialized, err = engine.Owner()
	if err != nil {
		return nil, err
	}
	if !info.Initialized {
		return info, nil
	}
	if info.Charity, err = engine.Charity(); err != nil {
		return nil, err
	}
	if info.LiveUntil, _, err = manager.Instance(contract).LiveUntil(); err != nil {
		return nil, err
	}
	return info, nil
}
