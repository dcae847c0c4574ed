// Package store persists chain state: contract data entries, account
// balances, the block height and the receipt log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an entry or receipt does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrReadOnly is returned by writes on a transaction from BeginRead.
	ErrReadOnly = errors.New("store: write in read-only transaction")
)

// Store opens transactions and serves the receipt log.
type Store interface {
	// Begin starts a transaction. Writes become visible to other
	// transactions only after Commit.
	Begin(ctx context.Context) (Tx, error)
	// BeginRead starts a read-only transaction over committed state.
	// Read transactions do not wait for each other.
	BeginRead(ctx context.Context) (Tx, error)
	ListReceipts(ctx context.Context, limit, offset int) ([]Receipt, int, error)
	// ReceiptsBefore returns up to limit receipts with height below
	// before, newest first. A zero before starts at the newest receipt.
	ReceiptsBefore(ctx context.Context, before uint64, limit int) ([]Receipt, error)
	GetReceipt(ctx context.Context, txID uuid.UUID) (Receipt, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is a unit of work against a Store. Callers must end it with Commit
// or Rollback; Rollback after Commit is a no-op.
type Tx interface {
	GetEntry(ctx context.Context, contract, mapName, key string) ([]byte, error)
	PutEntry(ctx context.Context, contract, mapName, key string, value []byte) error

	// Balance returns 0 for unknown principals.
	Balance(ctx context.Context, principal string) (uint64, error)
	SetBalance(ctx context.Context, principal string, amount uint64) error

	Height(ctx context.Context) (uint64, error)
	SetHeight(ctx context.Context, height uint64) error

	AppendReceipt(ctx context.Context, r Receipt) error

	Commit() error
	Rollback() error
}

// Event is a print event emitted by a contract during a call.
type Event struct {
	Contract string `json:"contract"`
	Topic    string `json:"topic"`
	Value    string `json:"value"`
}

// Receipt records one public call, committed or not.
type Receipt struct {
	TxID      uuid.UUID `json:"tx_id"`
	Height    uint64    `json:"height"`
	Sender    string    `json:"sender"`
	Contract  string    `json:"contract"`
	Function  string    `json:"function"`
	Args      []string  `json:"args"`
	Result    string    `json:"result"`
	Committed bool      `json:"committed"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
