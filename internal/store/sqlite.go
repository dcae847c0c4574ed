package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const metaHeight = "block_height"

// SQLiteStore persists state in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *SQLiteStore) Version(ctx context.Context) (int64, error) {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// BeginRead shares the single connection, so on SQLite read transactions
// still run one at a time.
func (s *SQLiteStore) BeginRead(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	return &sqliteTx{tx: tx, readOnly: true}, nil
}

func (s *SQLiteStore) ReceiptsBefore(ctx context.Context, before uint64, limit int) ([]Receipt, error) {
	limit, _ = normalizePage(limit, 0)
	if before == 0 || before > math.MaxInt64 {
		before = math.MaxInt64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, height, sender, contract, function, args, result, committed, events, created_at
		FROM receipts WHERE height < ? ORDER BY height DESC LIMIT ?`, int64(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Receipt, 0, limit)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListReceipts(ctx context.Context, limit, offset int) ([]Receipt, int, error) {
	limit, offset = normalizePage(limit, offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, height, sender, contract, function, args, result, committed, events, created_at
		FROM receipts ORDER BY seq DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Receipt, 0, limit)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) GetReceipt(ctx context.Context, txID uuid.UUID) (Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tx_id, height, sender, contract, function, args, result, committed, events, created_at
		FROM receipts WHERE tx_id=?`, txID.String())
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(sc scanner) (Receipt, error) {
	var (
		r                    Receipt
		id                   string
		height               int64
		argsJSON, eventsJSON string
	)
	if err := sc.Scan(&id, &height, &r.Sender, &r.Contract, &r.Function, &argsJSON, &r.Result, &r.Committed, &eventsJSON, &r.CreatedAt); err != nil {
		return Receipt{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt %q: %w", id, err)
	}
	r.TxID = parsed
	r.Height = uint64(height)

	if err := json.Unmarshal([]byte(argsJSON), &r.Args); err != nil {
		return Receipt{}, fmt.Errorf("receipt %s args: %w", id, err)
	}
	if err := json.Unmarshal([]byte(eventsJSON), &r.Events); err != nil {
		return Receipt{}, fmt.Errorf("receipt %s events: %w", id, err)
	}
	return r, nil
}

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) GetEntry(ctx context.Context, contract, mapName, key string) ([]byte, error) {
	var v []byte
	err := t.tx.QueryRowContext(ctx,
		`SELECT value FROM contract_entries WHERE contract=? AND map_name=? AND entry_key=?`,
		contract, mapName, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (t *sqliteTx) PutEntry(ctx context.Context, contract, mapName, key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contract_entries(contract, map_name, entry_key, value, updated_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(contract, map_name, entry_key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		contract, mapName, key, value, time.Now().UTC())
	return err
}

func (t *sqliteTx) Balance(ctx context.Context, principal string) (uint64, error) {
	var text string
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE principal=?`, principal).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(text, 10, 64)
}

func (t *sqliteTx) SetBalance(ctx context.Context, principal string, amount uint64) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts(principal, balance) VALUES(?,?)
		ON CONFLICT(principal) DO UPDATE SET balance=excluded.balance`,
		principal, strconv.FormatUint(amount, 10))
	return err
}

func (t *sqliteTx) Height(ctx context.Context) (uint64, error) {
	var text string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM chain_meta WHERE key=?`, metaHeight).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(text, 10, 64)
}

func (t *sqliteTx) SetHeight(ctx context.Context, height uint64) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chain_meta(key, value) VALUES(?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		metaHeight, strconv.FormatUint(height, 10))
	return err
}

func (t *sqliteTx) AppendReceipt(ctx context.Context, r Receipt) error {
	if t.readOnly {
		return ErrReadOnly
	}
	args, err := json.Marshal(r.Args)
	if err != nil {
		return err
	}
	events, err := json.Marshal(r.Events)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO receipts(tx_id, height, sender, contract, function, args, result, committed, events, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.TxID.String(), int64(r.Height), r.Sender, r.Contract, r.Function,
		string(args), r.Result, r.Committed, string(events), r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append receipt %s: %w", r.TxID, err)
	}
	return nil
}

func (t *sqliteTx) Commit() error { return t.tx.Commit() }

func (t *sqliteTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
