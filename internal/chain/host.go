// Package chain is a single-node contract host. It deploys contracts,
// executes their functions one transaction per block, keeps account
// balances and records a receipt for every public call.
package chain

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/engine"
	"github.com/MJE43/digiwin/internal/store"
)

// Result is the outcome of a public call.
type Result struct {
	Value   clarity.Response
	Receipt store.Receipt
}

// Host executes contract calls against a store. Public calls are fully
// serialized; read-only calls may run concurrently with each other.
type Host struct {
	mu         sync.RWMutex
	store      store.Store
	serverSeed string
	deployer   string
	contracts  map[string]*deployed
	logger     *log.Logger
	now        func() time.Time
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for call logs.
func WithLogger(l *log.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// NewHost creates a host whose contracts are deployed by deployer.
func NewHost(st store.Store, serverSeed, deployer string, opts ...Option) (*Host, error) {
	if !isStandardPrincipal(deployer) {
		return nil, fmt.Errorf("%w: deployer %q", ErrInvalidSender, deployer)
	}
	if serverSeed == "" {
		return nil, fmt.Errorf("chain: server seed is required")
	}
	h := &Host{
		store:      st,
		serverSeed: serverSeed,
		deployer:   deployer,
		contracts:  make(map[string]*deployed),
		logger:     log.New(io.Discard, "", 0),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Deployer returns the principal that owns deployed contracts.
func (h *Host) Deployer() string { return h.deployer }

// ServerSeedHash returns the SHA-256 of the server seed.
func (h *Host) ServerSeedHash() string { return engine.HashSeed(h.serverSeed) }

// Deploy registers c under <deployer>.<name> and returns that principal.
func (h *Host) Deploy(c Contract) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	principal := h.deployer + "." + c.Name()
	if _, exists := h.contracts[principal]; exists {
		return "", fmt.Errorf("%w: %s", ErrContractExists, principal)
	}

	d := &deployed{principal: principal, name: c.Name(), functions: make(map[string]Function)}
	for _, fn := range c.Functions() {
		if fn.Handler == nil {
			return "", fmt.Errorf("chain: %s::%s has no handler", principal, fn.Name)
		}
		if _, dup := d.functions[fn.Name]; dup {
			return "", fmt.Errorf("chain: %s::%s declared twice", principal, fn.Name)
		}
		d.functions[fn.Name] = fn
		d.order = append(d.order, fn.Name)
	}
	h.contracts[principal] = d
	h.logger.Printf("deploy contract=%s functions=%d", principal, len(d.order))
	return principal, nil
}

// Contracts lists deployed contracts sorted by principal.
func (h *Host) Contracts() []ContractInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ContractInfo, 0, len(h.contracts))
	for _, d := range h.contracts {
		out = append(out, d.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out
}

// lookup resolves a contract by full principal or by bare name under the
// deployer. Callers hold h.mu.
func (h *Host) lookup(contract, function string, kind Kind) (*deployed, Function, error) {
	if !strings.Contains(contract, ".") {
		contract = h.deployer + "." + contract
	}
	d, ok := h.contracts[contract]
	if !ok {
		return nil, Function{}, fmt.Errorf("%w: %s", ErrContractNotFound, contract)
	}
	fn, ok := d.functions[function]
	if !ok {
		return nil, Function{}, fmt.Errorf("%w: %s::%s", ErrFunctionNotFound, contract, function)
	}
	if fn.Kind != kind {
		return nil, Function{}, fmt.Errorf("%w: %s::%s is %s", ErrFunctionNotFound, contract, function, fn.Kind)
	}
	return d, fn, nil
}

// CallPublic executes a public function in a new block. The contract's
// writes are committed only when it returns (ok ...). A receipt is stored
// and the height advances for both ok and err responses. Go errors mean
// the call never ran to completion; nothing is stored in that case.
func (h *Host) CallPublic(ctx context.Context, contract, function string, args []clarity.Value, sender string) (*Result, error) {
	if !isStandardPrincipal(sender) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	d, fn, err := h.lookup(contract, function, Public)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(fn, args); err != nil {
		return nil, err
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	height, err := tx.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}
	height++

	cc := newCallContext(ctx, tx, d.principal, fn.Name, sender, height, h.serverSeed, false)
	value, err := invoke(cc, fn, args)
	if err != nil {
		h.logger.Printf("call_failed contract=%s fn=%s sender=%s error=%q", d.principal, fn.Name, sender, err)
		return nil, err
	}
	resp, ok := value.(clarity.Response)
	if !ok {
		return nil, &RuntimeError{Contract: d.principal, Function: fn.Name, Err: fmt.Errorf("public function returned %s, want response", value.Type())}
	}

	receipt := store.Receipt{
		TxID:      uuid.New(),
		Height:    height,
		Sender:    sender,
		Contract:  d.principal,
		Function:  fn.Name,
		Args:      renderArgs(args),
		Result:    resp.String(),
		Committed: resp.IsOk(),
		Events:    []store.Event{},
		CreatedAt: h.now().UTC(),
	}
	if resp.IsOk() {
		if err := cc.flush(tx); err != nil {
			return nil, fmt.Errorf("commit contract state: %w", err)
		}
		receipt.Events = append(receipt.Events, cc.events...)
	}

	if err := tx.SetHeight(ctx, height); err != nil {
		return nil, err
	}
	if err := tx.AppendReceipt(ctx, receipt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit block %d: %w", height, err)
	}

	h.logger.Printf("call tx=%s height=%d contract=%s fn=%s sender=%s result=%s committed=%t",
		receipt.TxID, height, d.principal, fn.Name, sender, receipt.Result, receipt.Committed)

	return &Result{Value: resp, Receipt: receipt}, nil
}

// CallReadOnly evaluates a read-only function at the current height.
func (h *Host) CallReadOnly(ctx context.Context, contract, function string, args []clarity.Value, sender string) (clarity.Value, error) {
	if sender == "" {
		sender = h.deployer
	}
	if !isStandardPrincipal(sender) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	d, fn, err := h.lookup(contract, function, ReadOnly)
	if err != nil {
		return nil, err
	}
	if err := checkArgs(fn, args); err != nil {
		return nil, err
	}

	tx, err := h.store.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	height, err := tx.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}

	cc := newCallContext(ctx, tx, d.principal, fn.Name, sender, height, h.serverSeed, true)
	return invoke(cc, fn, args)
}

// invoke runs the handler and turns panics and handler errors into
// runtime errors.
func invoke(cc *CallContext, fn Function, args []clarity.Value) (value clarity.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &RuntimeError{Contract: cc.contract, Function: fn.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	value, err = fn.Handler(cc, args)
	if err != nil {
		return nil, &RuntimeError{Contract: cc.contract, Function: fn.Name, Err: err}
	}
	if value == nil {
		return nil, &RuntimeError{Contract: cc.contract, Function: fn.Name, Err: fmt.Errorf("no value returned")}
	}
	return value, nil
}

func renderArgs(args []clarity.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}

// Genesis credits balance to each account that has none yet. It only
// applies while the chain is at height 0, so restarting a node on an
// existing database leaves balances alone.
func (h *Host) Genesis(ctx context.Context, accounts []Account, balance uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	height, err := tx.Height(ctx)
	if err != nil {
		return err
	}
	if height > 0 {
		return nil
	}

	funded := 0
	for _, a := range accounts {
		cur, err := tx.Balance(ctx, a.Address)
		if err != nil {
			return err
		}
		if cur != 0 {
			continue
		}
		if err := tx.SetBalance(ctx, a.Address, balance); err != nil {
			return err
		}
		funded++
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if funded > 0 {
		h.logger.Printf("genesis accounts=%d balance=%s", funded, FormatSTX(balance))
	}
	return nil
}

// Balance returns the committed balance of principal in µSTX.
func (h *Host) Balance(ctx context.Context, principal string) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tx, err := h.store.BeginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return tx.Balance(ctx, principal)
}

// BlockHeight returns the height of the last mined block.
func (h *Host) BlockHeight(ctx context.Context) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tx, err := h.store.BeginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return tx.Height(ctx)
}

// Receipts lists receipts, newest first.
func (h *Host) Receipts(ctx context.Context, limit, offset int) ([]store.Receipt, int, error) {
	return h.store.ListReceipts(ctx, limit, offset)
}

// ReceiptsBefore lists up to limit receipts below height before, newest
// first. Zero starts at the newest receipt.
func (h *Host) ReceiptsBefore(ctx context.Context, before uint64, limit int) ([]store.Receipt, error) {
	return h.store.ReceiptsBefore(ctx, before, limit)
}

// Receipt returns one receipt by transaction id.
func (h *Host) Receipt(ctx context.Context, txID uuid.UUID) (store.Receipt, error) {
	return h.store.GetReceipt(ctx, txID)
}

// Ping checks that the store is reachable.
func (h *Host) Ping(ctx context.Context) error {
	return h.store.Ping(ctx)
}
