package chain

import (
	"errors"
	"fmt"
)

var (
	ErrContractNotFound = errors.New("chain: contract not found")
	ErrContractExists   = errors.New("chain: contract already deployed")
	ErrFunctionNotFound = errors.New("chain: function not found")
	ErrInvalidArgs      = errors.New("chain: invalid arguments")
	ErrInvalidSender    = errors.New("chain: invalid sender principal")
	ErrReadOnlyWrite    = errors.New("chain: write in read-only call")
	ErrUnauthorized     = errors.New("chain: transfer not authorized")
	ErrRuntime          = errors.New("chain: runtime error")
)

// Transfer failure codes, as returned by stx-transfer?.
const (
	TransferInsufficientBalance uint64 = 1
	TransferSameAccount         uint64 = 2
	TransferNonPositive         uint64 = 3
)

// TransferError is a rejected STX transfer. Contracts usually map it to
// their own error code.
type TransferError struct {
	Code      uint64
	Amount    uint64
	Sender    string
	Recipient string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("chain: transfer of %d from %s to %s failed with code %d", e.Amount, e.Sender, e.Recipient, e.Code)
}

// RuntimeError wraps a fault raised while a contract function executes.
// It unwraps to ErrRuntime.
type RuntimeError struct {
	Contract string
	Function string
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("chain: runtime error in %s::%s: %v", e.Contract, e.Function, e.Err)
}

func (e *RuntimeError) Unwrap() []error { return []error{ErrRuntime, e.Err} }
