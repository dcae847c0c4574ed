package api

import (
	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidArgs   = "invalid_args"
	ErrTypeInvalidSender = "invalid_sender"

	// Contract errors
	ErrTypeContractNotFound = "contract_not_found"
	ErrTypeFunctionNotFound = "function_not_found"
	ErrTypeNotFound         = "not_found"
	ErrTypeRuntime          = "runtime_error"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryContract   ErrorCategory = "contract"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidArgs, ErrTypeInvalidSender:
		return CategoryValidation
	case ErrTypeContractNotFound, ErrTypeFunctionNotFound, ErrTypeNotFound, ErrTypeRuntime:
		return CategoryContract
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// CallRequest is the body of a contract call. Sender may be a principal or
// a devnet account name such as "wallet_1"; args are Clarity literals.
type CallRequest struct {
	Sender string   `json:"sender"`
	Args   []string `json:"args"`
}

// CallResponse is returned for public calls, whether the contract
// answered (ok ...) or (err ...).
type CallResponse struct {
	TxID          string            `json:"tx_id"`
	Height        uint64            `json:"height"`
	Contract      string            `json:"contract"`
	Function      string            `json:"function"`
	Sender        string            `json:"sender"`
	Result        string            `json:"result"`
	Value         clarity.JSONValue `json:"value"`
	Committed     bool              `json:"committed"`
	ErrorName     string            `json:"error_name,omitempty"`
	Events        []store.Event     `json:"events"`
	EngineVersion string            `json:"engine_version"`
}

// ReadOnlyResponse is returned for read-only calls
type ReadOnlyResponse struct {
	Contract      string            `json:"contract"`
	Function      string            `json:"function"`
	Result        string            `json:"result"`
	Value         clarity.JSONValue `json:"value"`
	EngineVersion string            `json:"engine_version"`
}

// ContractsResponse lists deployed contracts
type ContractsResponse struct {
	Contracts     []chain.ContractInfo `json:"contracts"`
	EngineVersion string               `json:"engine_version"`
}

// AccountResponse reports a balance. Micro-units travel as a string.
type AccountResponse struct {
	Address    string `json:"address"`
	Name       string `json:"name,omitempty"`
	Balance    string `json:"balance"`
	BalanceSTX string `json:"balance_stx"`
}

// AccountsResponse lists the known accounts
type AccountsResponse struct {
	Accounts      []AccountResponse `json:"accounts"`
	EngineVersion string            `json:"engine_version"`
}

// TransactionsResponse is a page of receipts, newest first
type TransactionsResponse struct {
	Transactions  []store.Receipt `json:"transactions"`
	Total         int             `json:"total"`
	Limit         int             `json:"limit"`
	Offset        int             `json:"offset"`
	EngineVersion string          `json:"engine_version"`
}

// GameResponse wraps get-game-info for one game
type GameResponse struct {
	ID            uint64            `json:"id"`
	Result        string            `json:"result"`
	Game          clarity.JSONValue `json:"game"`
	EngineVersion string            `json:"engine_version"`
}

// ChainInfoResponse describes the node
type ChainInfoResponse struct {
	BlockHeight    uint64      `json:"block_height"`
	Deployer       string      `json:"deployer"`
	ServerSeedHash string      `json:"server_seed_hash"`
	Version        VersionInfo `json:"version"`
}
