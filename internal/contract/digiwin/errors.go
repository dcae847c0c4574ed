package digiwin

import "errors"

// Error codes returned as (err uN).
const (
	CodeGameNotFound   uint64 = 101
	CodeGameAlreadyWon uint64 = 102
	CodeInvalidGuess   uint64 = 103
	CodeTransferFailed uint64 = 104
	CodeInvalidParams  uint64 = 105
)

var codeNames = map[uint64]string{
	CodeGameNotFound:   "ERR_GAME_NOT_FOUND",
	CodeGameAlreadyWon: "ERR_GAME_ALREADY_WON",
	CodeInvalidGuess:   "ERR_INVALID_GUESS",
	CodeTransferFailed: "ERR_TRANSFER_FAILED",
	CodeInvalidParams:  "ERR_INVALID_PARAMS",
}

// CodeName returns the constant name of an error code, or "" if unknown.
func CodeName(code uint64) string { return codeNames[code] }

var (
	errOverflow    = errors.New("digiwin: arithmetic overflow")
	errEscrowShort = errors.New("digiwin: escrow cannot cover prize pool")
)
