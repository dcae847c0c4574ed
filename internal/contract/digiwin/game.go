package digiwin

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
)

const (
	mapGames = "games"
	mapVars  = "vars"

	varNextGameID = "next-game-id"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusOpen Status = "open"
	StatusWon  Status = "won"
)

// Game is one guessing round as stored by the contract.
type Game struct {
	ID        uint64 `json:"id"`
	Creator   string `json:"creator"`
	Min       uint64 `json:"min"`
	Max       uint64 `json:"max"`
	Fee       uint64 `json:"fee"`
	Secret    uint64 `json:"secret"`
	PrizePool uint64 `json:"prize_pool"`
	Status    Status `json:"status"`
	Winner    string `json:"winner,omitempty"`
	Guesses   uint64 `json:"guesses"`
	CreatedAt uint64 `json:"created_at"`
	WonAt     uint64 `json:"won_at,omitempty"`
}

// Tuple renders the public view of the game. The secret is left out.
func (g *Game) Tuple() clarity.Tuple {
	winner := clarity.None()
	if g.Winner != "" {
		winner = clarity.Some(clarity.Principal(g.Winner))
	}
	return clarity.NewTuple(map[string]clarity.Value{
		"id":         clarity.UInt(g.ID),
		"creator":    clarity.Principal(g.Creator),
		"min":        clarity.UInt(g.Min),
		"max":        clarity.UInt(g.Max),
		"fee":        clarity.UInt(g.Fee),
		"prize-pool": clarity.UInt(g.PrizePool),
		"status":     clarity.StringASCII(g.Status),
		"winner":     winner,
		"guesses":    clarity.UInt(g.Guesses),
		"created-at": clarity.UInt(g.CreatedAt),
	})
}

func gameKey(id uint64) string { return strconv.FormatUint(id, 10) }

func loadGame(cc *chain.CallContext, id uint64) (*Game, bool, error) {
	raw, ok, err := cc.GetEntry(mapGames, gameKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, false, fmt.Errorf("decode game %d: %w", id, err)
	}
	return &g, true, nil
}

func saveGame(cc *chain.CallContext, g *Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %d: %w", g.ID, err)
	}
	return cc.SetEntry(mapGames, gameKey(g.ID), raw)
}

// nextGameID reads the next-game-id data var, 0 until the first game.
func nextGameID(cc *chain.CallContext) (uint64, error) {
	raw, ok, err := cc.GetEntry(mapVars, varNextGameID)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", varNextGameID, err)
	}
	return n, nil
}

func setNextGameID(cc *chain.CallContext, n uint64) error {
	return cc.SetEntry(mapVars, varNextGameID, []byte(strconv.FormatUint(n, 10)))
}
