package chain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/engine"
	"github.com/MJE43/digiwin/internal/store"
)

type overlayKey struct {
	mapName, key string
}

// CallContext is what a contract function sees of the chain during one
// call. Writes go to an overlay that the host commits only when a public
// function returns (ok ...).
type CallContext struct {
	ctx      context.Context
	tx       store.Tx
	contract string
	function string
	sender   string
	height   uint64
	seed     string
	readOnly bool

	entries  map[overlayKey][]byte
	balances map[string]uint64
	events   []store.Event
}

func newCallContext(ctx context.Context, tx store.Tx, contract, function, sender string, height uint64, serverSeed string, readOnly bool) *CallContext {
	return &CallContext{
		ctx:      ctx,
		tx:       tx,
		contract: contract,
		function: function,
		sender:   sender,
		height:   height,
		seed:     engine.BlockSeed(serverSeed, height),
		readOnly: readOnly,
		entries:  make(map[overlayKey][]byte),
		balances: make(map[string]uint64),
	}
}

// Context returns the request context of the call.
func (c *CallContext) Context() context.Context { return c.ctx }

// Sender is the principal that signed the call (tx-sender).
func (c *CallContext) Sender() string { return c.sender }

// ContractPrincipal is the principal of the executing contract.
func (c *CallContext) ContractPrincipal() string { return c.contract }

// BlockHeight is the height of the block the call executes in.
func (c *CallContext) BlockHeight() uint64 { return c.height }

// BlockSeed is the entropy of the current block. It is derived from the
// node's server seed and the height, so it is fixed for a given block.
func (c *CallContext) BlockSeed() string { return c.seed }

// ReadOnly reports whether writes are forbidden.
func (c *CallContext) ReadOnly() bool { return c.readOnly }

// GetEntry reads key from one of the contract's maps.
func (c *CallContext) GetEntry(mapName, key string) ([]byte, bool, error) {
	if v, ok := c.entries[overlayKey{mapName, key}]; ok {
		return v, true, nil
	}
	v, err := c.tx.GetEntry(c.ctx, c.contract, mapName, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", mapName, key, err)
	}
	return v, true, nil
}

// SetEntry writes key in one of the contract's maps.
func (c *CallContext) SetEntry(mapName, key string, value []byte) error {
	if c.readOnly {
		return fmt.Errorf("%w: set %s/%s", ErrReadOnlyWrite, mapName, key)
	}
	c.entries[overlayKey{mapName, key}] = append([]byte(nil), value...)
	return nil
}

// Balance returns the µSTX balance of principal as seen by this call.
func (c *CallContext) Balance(principal string) (uint64, error) {
	if v, ok := c.balances[principal]; ok {
		return v, nil
	}
	return c.tx.Balance(c.ctx, principal)
}

// Transfer moves amount µSTX from sender to recipient. Only the caller and
// the executing contract may spend. A rejected transfer is returned as a
// *TransferError and changes nothing.
func (c *CallContext) Transfer(amount uint64, sender, recipient string) error {
	if c.readOnly {
		return fmt.Errorf("%w: transfer", ErrReadOnlyWrite)
	}
	if sender != c.sender && sender != c.contract {
		return fmt.Errorf("%w: %s cannot spend from %s", ErrUnauthorized, c.contract, sender)
	}

	fail := func(code uint64) error {
		return &TransferError{Code: code, Amount: amount, Sender: sender, Recipient: recipient}
	}
	if amount == 0 {
		return fail(TransferNonPositive)
	}
	if sender == recipient {
		return fail(TransferSameAccount)
	}

	from, err := c.Balance(sender)
	if err != nil {
		return err
	}
	if from < amount {
		return fail(TransferInsufficientBalance)
	}
	to, err := c.Balance(recipient)
	if err != nil {
		return err
	}
	if to > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s", recipient)
	}

	c.balances[sender] = from - amount
	c.balances[recipient] = to + amount
	c.Print("stx-transfer", clarity.NewTuple(map[string]clarity.Value{
		"amount":    clarity.UInt(amount),
		"sender":    clarity.Principal(sender),
		"recipient": clarity.Principal(recipient),
	}))
	return nil
}

// Print records an event on the call's receipt.
func (c *CallContext) Print(topic string, v clarity.Value) {
	c.events = append(c.events, store.Event{Contract: c.contract, Topic: topic, Value: v.String()})
}

func (c *CallContext) flush(tx store.Tx) error {
	for k, v := range c.entries {
		if err := tx.PutEntry(c.ctx, c.contract, k.mapName, k.key, v); err != nil {
			return err
		}
	}
	for p, v := range c.balances {
		if err := tx.SetBalance(c.ctx, p, v); err != nil {
			return err
		}
	}
	return nil
}
