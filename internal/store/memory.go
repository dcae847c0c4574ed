package store

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errTxDone = errors.New("store: transaction already finished")

type entryKey struct {
	contract, mapName, key string
}

// MemoryStore keeps all state in process memory. Write transactions are
// serialized: Begin blocks until the previous one finishes or ctx is done.
// Read transactions hold a shared lock, so commits wait for them.
type MemoryStore struct {
	writer chan struct{}

	mu       sync.RWMutex
	entries  map[entryKey][]byte
	balances map[string]uint64
	height   uint64
	receipts []Receipt
}

// NewMemoryStore returns an empty store at height 0.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writer:   make(chan struct{}, 1),
		entries:  make(map[entryKey][]byte),
		balances: make(map[string]uint64),
	}
}

func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case m.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &memoryTx{
		store:    m,
		entries:  make(map[entryKey][]byte),
		balances: make(map[string]uint64),
	}, nil
}

func (m *MemoryStore) ListReceipts(ctx context.Context, limit, offset int) ([]Receipt, int, error) {
	limit, offset = normalizePage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	total := len(m.receipts)
	out := make([]Receipt, 0, limit)
	// newest first
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.receipts[i])
	}
	return out, total, nil
}

func (m *MemoryStore) BeginRead(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	return &memoryReadTx{store: m}, nil
}

func (m *MemoryStore) ReceiptsBefore(ctx context.Context, before uint64, limit int) ([]Receipt, error) {
	limit, _ = normalizePage(limit, 0)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Receipt, 0, limit)
	for i := len(m.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		if before != 0 && m.receipts[i].Height >= before {
			continue
		}
		out = append(out, m.receipts[i])
	}
	return out, nil
}

func (m *MemoryStore) GetReceipt(ctx context.Context, txID uuid.UUID) (Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.receipts {
		if r.TxID == txID {
			return r, nil
		}
	}
	return Receipt{}, ErrNotFound
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

// memoryTx buffers writes and applies them on Commit.
type memoryTx struct {
	store *MemoryStore
	done  bool

	entries  map[entryKey][]byte
	balances map[string]uint64
	height   *uint64
	receipts []Receipt
}

func (tx *memoryTx) GetEntry(ctx context.Context, contract, mapName, key string) ([]byte, error) {
	if tx.done {
		return nil, errTxDone
	}
	k := entryKey{contract, mapName, key}
	if v, ok := tx.entries[k]; ok {
		return cloneBytes(v), nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	v, ok := tx.store.entries[k]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (tx *memoryTx) PutEntry(ctx context.Context, contract, mapName, key string, value []byte) error {
	if tx.done {
		return errTxDone
	}
	tx.entries[entryKey{contract, mapName, key}] = cloneBytes(value)
	return nil
}

func (tx *memoryTx) Balance(ctx context.Context, principal string) (uint64, error) {
	if tx.done {
		return 0, errTxDone
	}
	if v, ok := tx.balances[principal]; ok {
		return v, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.balances[principal], nil
}

func (tx *memoryTx) SetBalance(ctx context.Context, principal string, amount uint64) error {
	if tx.done {
		return errTxDone
	}
	tx.balances[principal] = amount
	return nil
}

func (tx *memoryTx) Height(ctx context.Context) (uint64, error) {
	if tx.done {
		return 0, errTxDone
	}
	if tx.height != nil {
		return *tx.height, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.height, nil
}

func (tx *memoryTx) SetHeight(ctx context.Context, height uint64) error {
	if tx.done {
		return errTxDone
	}
	tx.height = &height
	return nil
}

func (tx *memoryTx) AppendReceipt(ctx context.Context, r Receipt) error {
	if tx.done {
		return errTxDone
	}
	r.Args = append([]string(nil), r.Args...)
	r.Events = append([]Event(nil), r.Events...)
	tx.receipts = append(tx.receipts, r)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	defer func() { <-tx.store.writer }()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range tx.entries {
		s.entries[k] = v
	}
	for p, v := range tx.balances {
		s.balances[p] = v
	}
	if tx.height != nil {
		s.height = *tx.height
	}
	s.receipts = append(s.receipts, tx.receipts...)
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	<-tx.store.writer
	return nil
}

// memoryReadTx reads committed state under the store's read lock until
// it is finished.
type memoryReadTx struct {
	store *MemoryStore
	done  bool
}

func (tx *memoryReadTx) GetEntry(ctx context.Context, contract, mapName, key string) ([]byte, error) {
	if tx.done {
		return nil, errTxDone
	}
	v, ok := tx.store.entries[entryKey{contract, mapName, key}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (tx *memoryReadTx) PutEntry(ctx context.Context, contract, mapName, key string, value []byte) error {
	return ErrReadOnly
}

func (tx *memoryReadTx) Balance(ctx context.Context, principal string) (uint64, error) {
	if tx.done {
		return 0, errTxDone
	}
	return tx.store.balances[principal], nil
}

func (tx *memoryReadTx) SetBalance(ctx context.Context, principal string, amount uint64) error {
	return ErrReadOnly
}

func (tx *memoryReadTx) Height(ctx context.Context) (uint64, error) {
	if tx.done {
		return 0, errTxDone
	}
	return tx.store.height, nil
}

func (tx *memoryReadTx) SetHeight(ctx context.Context, height uint64) error { return ErrReadOnly }

func (tx *memoryReadTx) AppendReceipt(ctx context.Context, r Receipt) error { return ErrReadOnly }

func (tx *memoryReadTx) Commit() error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	tx.store.mu.RUnlock()
	return nil
}

func (tx *memoryReadTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.RUnlock()
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
