// Package digiwin is a number-guessing game contract. A creator opens a
// game with an inclusive range and an entry fee; every valid guess pays the
// fee into the game's prize pool and the first guess that hits the hidden
// number wins the pool.
package digiwin

import (
	"errors"
	"fmt"
	"math"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/engine"
)

// Name is the name the contract is deployed under.
const Name = "digiwin"

// Contract implements chain.Contract.
type Contract struct{}

// New returns the digiwin contract.
func New() *Contract { return &Contract{} }

func (*Contract) Name() string { return Name }

func (c *Contract) Functions() []chain.Function {
	uintParam := func(name string) chain.Param { return chain.Param{Name: name, Type: clarity.TypeUInt} }

	return []chain.Function{
		{
			Name:    "create-game",
			Kind:    chain.Public,
			Params:  []chain.Param{uintParam("min"), uintParam("max"), uintParam("fee")},
			Handler: c.createGame,
		},
		{
			Name:    "guess",
			Kind:    chain.Public,
			Params:  []chain.Param{uintParam("game-id"), uintParam("value")},
			Handler: c.guess,
		},
		{
			Name:    "get-prize-pool",
			Kind:    chain.ReadOnly,
			Params:  []chain.Param{uintParam("game-id")},
			Handler: c.getPrizePool,
		},
		{
			Name:    "get-game-info",
			Kind:    chain.ReadOnly,
			Params:  []chain.Param{uintParam("game-id")},
			Handler: c.getGameInfo,
		},
		{
			Name:    "get-game-count",
			Kind:    chain.ReadOnly,
			Handler: c.getGameCount,
		},
	}
}

// uintArgs unpacks arguments the host has already type-checked.
func uintArgs(args []clarity.Value) []uint64 {
	out := make([]uint64, len(args))
	for i, a := range args {
		out[i], _ = clarity.AsUInt(a)
	}
	return out
}

func (c *Contract) createGame(cc *chain.CallContext, args []clarity.Value) (clarity.Value, error) {
	a := uintArgs(args)
	lo, hi, fee := a[0], a[1], a[2]

	if lo >= hi {
		return clarity.ErrUInt(CodeInvalidParams), nil
	}

	id, err := nextGameID(cc)
	if err != nil {
		return nil, err
	}
	if id == math.MaxUint64 {
		return nil, errOverflow
	}

	g := &Game{
		ID:        id,
		Creator:   cc.Sender(),
		Min:       lo,
		Max:       hi,
		Fee:       fee,
		Secret:    engine.UintInRange(cc.BlockSeed(), cc.ContractPrincipal(), id, lo, hi),
		Status:    StatusOpen,
		CreatedAt: cc.BlockHeight(),
	}
	if err := saveGame(cc, g); err != nil {
		return nil, err
	}
	if err := setNextGameID(cc, id+1); err != nil {
		return nil, err
	}

	cc.Print("game-created", clarity.NewTuple(map[string]clarity.Value{
		"game-id": clarity.UInt(id),
		"creator": clarity.Principal(g.Creator),
		"lo":     clarity.UInt(lo),
		"hi":     clarity.UInt(hi),
		"fee":     clarity.UInt(fee),
	}))
	return clarity.OkUInt(id), nil
}

func (c *Contract) guess(cc *chain.CallContext, args []clarity.Value) (clarity.Value, error) {
	a := uintArgs(args)
	id, value := a[0], a[1]

	g, ok, err := loadGame(cc, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return clarity.ErrUInt(CodeGameNotFound), nil
	}
	if g.Status == StatusWon {
		return clarity.ErrUInt(CodeGameAlreadyWon), nil
	}
	if value < g.Min || value > g.Max {
		return clarity.ErrUInt(CodeInvalidGuess), nil
	}
	if g.PrizePool > math.MaxUint64-g.Fee || g.Guesses == math.MaxUint64 {
		return nil, errOverflow
	}

	player := cc.Sender()
	if g.Fee > 0 {
		err := cc.Transfer(g.Fee, player, cc.ContractPrincipal())
		var te *chain.TransferError
		if errors.As(err, &te) {
			return clarity.ErrUInt(CodeTransferFailed), nil
		}
		if err != nil {
			return nil, err
		}
	}
	g.PrizePool += g.Fee
	g.Guesses++

	matched := value == g.Secret
	if matched {
		g.Status = StatusWon
		g.Winner = player
		g.WonAt = cc.BlockHeight()
		if err := payout(cc, g); err != nil {
			return nil, err
		}
		cc.Print("game-won", clarity.NewTuple(map[string]clarity.Value{
			"game-id":    clarity.UInt(id),
			"winner":     clarity.Principal(player),
			"prize-pool": clarity.UInt(g.PrizePool),
		}))
	} else {
		cc.Print("guess-missed", clarity.NewTuple(map[string]clarity.Value{
			"game-id":    clarity.UInt(id),
			"player":     clarity.Principal(player),
			"prize-pool": clarity.UInt(g.PrizePool),
		}))
	}

	if err := saveGame(cc, g); err != nil {
		return nil, err
	}
	return clarity.Ok(clarity.Bool(matched)), nil
}

// payout sends the whole pool from escrow to the winner.
func payout(cc *chain.CallContext, g *Game) error {
	if g.PrizePool == 0 {
		return nil
	}
	err := cc.Transfer(g.PrizePool, cc.ContractPrincipal(), g.Winner)
	var te *chain.TransferError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: game %d: %v", errEscrowShort, g.ID, te)
	}
	return err
}

func (c *Contract) getPrizePool(cc *chain.CallContext, args []clarity.Value) (clarity.Value, error) {
	id := uintArgs(args)[0]
	g, ok, err := loadGame(cc, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return clarity.None(), nil
	}
	return clarity.Some(clarity.UInt(g.PrizePool)), nil
}

func (c *Contract) getGameInfo(cc *chain.CallContext, args []clarity.Value) (clarity.Value, error) {
	id := uintArgs(args)[0]
	g, ok, err := loadGame(cc, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return clarity.None(), nil
	}
	return clarity.Some(g.Tuple()), nil
}

func (c *Contract) getGameCount(cc *chain.CallContext, _ []clarity.Value) (clarity.Value, error) {
	n, err := nextGameID(cc)
	if err != nil {
		return nil, err
	}
	return clarity.UInt(n), nil
}
