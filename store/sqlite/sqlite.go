/*
Package sqlite provides a SQLite-backed implementation of the Fact Store.

PURPOSE:
  Implements ledger.TxStore using SQLite. This is the default durable store:
  state survives process restarts, and every write is committed before the
  operation that triggered it reports success.

INTERFACES IMPLEMENTED:
  ledger.Store:   Clients, transactions, credit balances, balance cache
  ledger.TxStore: WithTx for atomic transaction + cache writes

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on the transactions table
  - CHECK (amount <> 0) rejects zero-amount rows at the database level
  - seq INTEGER PRIMARY KEY AUTOINCREMENT gives stable insertion order

KEY TABLES:
  clients:         Identity records (seeded at load time)
  transactions:    Append-only ledger
  credit_balances: One row per client, upserted
  balance_cache:   Persisted real/combined balance, written with each mutation

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the connection pool. ":memory:"
  databases are limited to a single connection so every statement sees the
  same database.

WAL MODE:
  Opened with WAL journal and synchronous=FULL: committed writes are on disk
  when Commit returns.

USAGE:
  store, err := sqlite.New("./data/bank.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation with the same schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/bank-ledger/ledger"
)

const dbDateLayout = "2006-01-02"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Clients (identity, immutable after load)
	CREATE TABLE IF NOT EXISTS clients (
		number INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		agency TEXT NOT NULL,
		city TEXT NOT NULL,
		opening_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_city
		ON clients(city);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		client_number INTEGER NOT NULL REFERENCES clients(number),
		amount INTEGER NOT NULL CHECK (amount <> 0),
		kind TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Real balance and listing (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_client_seq
		ON transactions(client_number, seq);

	-- Credit balances (one row per client)
	CREATE TABLE IF NOT EXISTS credit_balances (
		client_number INTEGER PRIMARY KEY REFERENCES clients(number),
		amount INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Cached balances, rewritten in the same transaction as every mutation
	CREATE TABLE IF NOT EXISTS balance_cache (
		client_number INTEGER PRIMARY KEY REFERENCES clients(number),
		real_balance INTEGER NOT NULL,
		combined_balance INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FACT STORE (ledger.Store interface)
// =============================================================================

func (s *Store) SaveClient(ctx context.Context, c ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.SaveClient(ctx, c)
}

func (s *Store) GetClient(ctx context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.GetClient(ctx, number)
}

func (s *Store) ListClients(ctx context.Context) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.ListClients(ctx)
}

// AppendTransaction adds a transaction to the ledger.
func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.AppendTransaction(ctx, tx)
}

func (s *Store) LoadTransactions(ctx context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.LoadTransactions(ctx, number)
}

func (s *Store) SumTransactions(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.SumTransactions(ctx, number)
}

func (s *Store) GetCreditBalance(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.GetCreditBalance(ctx, number)
}

func (s *Store) SetCreditBalance(ctx context.Context, cb ledger.CreditBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.SetCreditBalance(ctx, cb)
}

func (s *Store) ListCreditBalances(ctx context.Context) ([]ledger.CreditBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.ListCreditBalances(ctx)
}

func (s *Store) GetBalanceCache(ctx context.Context, number ledger.ClientNumber) (ledger.BalanceCache, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.GetBalanceCache(ctx, number)
}

func (s *Store) PutBalanceCache(ctx context.Context, cache ledger.BalanceCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.PutBalanceCache(ctx, cache)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// CONN - Statements shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
}

func (c conn) SaveClient(ctx context.Context, cl ledger.Client) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO clients (number, name, agency, city, opening_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		int(cl.Number), cl.Name, cl.Agency, cl.City,
		cl.OpeningDate.Time.Format(dbDateLayout),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateClient
		}
		return fmt.Errorf("failed to save client %d: %w", cl.Number, err)
	}
	return nil
}

func (c conn) GetClient(ctx context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT number, name, agency, city, opening_date
		FROM clients WHERE number = ?`, int(number))

	cl, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	return cl, err
}

func (c conn) ListClients(ctx context.Context) ([]ledger.Client, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT number, name, agency, city, opening_date
		FROM clients ORDER BY number ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	clients := []ledger.Client{}
	for rows.Next() {
		cl, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, cl)
	}
	return clients, rows.Err()
}

func (c conn) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	amount, err := tx.Amount.StoredInt64()
	if err != nil {
		return ledger.Transaction{}, err
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO transactions (id, client_number, amount, kind, tx_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(tx.ID), int(tx.ClientNumber), amount, string(tx.Kind),
		tx.Date.Time.Format(dbDateLayout),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to read transaction seq: %w", err)
	}
	tx.Seq = seq
	return tx, nil
}

func (c conn) LoadTransactions(ctx context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT seq, id, client_number, amount, kind, tx_date, created_at
		FROM transactions
		WHERE client_number = ?
		ORDER BY seq ASC`, int(number))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (c conn) SumTransactions(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	var sum int64
	err := c.q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE client_number = ?",
		int(number),
	).Scan(&sum)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return ledger.NewAmount(sum), nil
}

func (c conn) GetCreditBalance(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	var amount int64
	err := c.q.QueryRowContext(ctx,
		"SELECT amount FROM credit_balances WHERE client_number = ?", int(number),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewAmount(0), false, nil
	}
	if err != nil {
		return ledger.Amount{}, false, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return ledger.NewAmount(amount), true, nil
}

func (c conn) SetCreditBalance(ctx context.Context, cb ledger.CreditBalance) error {
	amount, err := cb.Amount.StoredInt64()
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO credit_balances (client_number, amount, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(client_number) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		int(cb.ClientNumber), amount, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to set credit balance: %w", err)
	}
	return nil
}

func (c conn) ListCreditBalances(ctx context.Context) ([]ledger.CreditBalance, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT client_number, amount FROM credit_balances ORDER BY client_number ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query credit balances: %w", err)
	}
	defer rows.Close()

	balances := []ledger.CreditBalance{}
	for rows.Next() {
		var number int
		var amount int64
		if err := rows.Scan(&number, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan credit balance: %w", err)
		}
		balances = append(balances, ledger.CreditBalance{
			ClientNumber: ledger.ClientNumber(number),
			Amount:       ledger.NewAmount(amount),
		})
	}
	return balances, rows.Err()
}

func (c conn) GetBalanceCache(ctx context.Context, number ledger.ClientNumber) (ledger.BalanceCache, bool, error) {
	var (
		realBalance, combined int64
		updatedAt             string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT real_balance, combined_balance, updated_at
		FROM balance_cache WHERE client_number = ?`, int(number),
	).Scan(&realBalance, &combined, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.BalanceCache{}, false, nil
	}
	if err != nil {
		return ledger.BalanceCache{}, false, fmt.Errorf("failed to get balance cache: %w", err)
	}
	t, _ := time.Parse(time.RFC3339Nano, updatedAt)
	return ledger.BalanceCache{
		ClientNumber:    number,
		RealBalance:     ledger.NewAmount(realBalance),
		CombinedBalance: ledger.NewAmount(combined),
		UpdatedAt:       t,
	}, true, nil
}

func (c conn) PutBalanceCache(ctx context.Context, cache ledger.BalanceCache) error {
	realBalance, err := cache.RealBalance.StoredInt64()
	if err != nil {
		return err
	}
	combined, err := cache.CombinedBalance.StoredInt64()
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO balance_cache (client_number, real_balance, combined_balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_number) DO UPDATE SET
			real_balance = excluded.real_balance,
			combined_balance = excluded.combined_balance,
			updated_at = excluded.updated_at`,
		int(cache.ClientNumber), realBalance, combined,
		cache.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to put balance cache: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (ledger.Client, error) {
	var (
		cl          ledger.Client
		number      int
		openingDate string
	)
	if err := row.Scan(&number, &cl.Name, &cl.Agency, &cl.City, &openingDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cl, err
		}
		return cl, fmt.Errorf("failed to scan client: %w", err)
	}
	cl.Number = ledger.ClientNumber(number)
	t, err := time.Parse(dbDateLayout, openingDate)
	if err != nil {
		return cl, fmt.Errorf("client %d has invalid opening date %q: %w", number, openingDate, err)
	}
	cl.OpeningDate = ledger.DateOf(t)
	return cl, nil
}

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		id, kind  string
		number    int
		amount    int64
		txDate    string
		createdAt string
	)
	if err := row.Scan(&tx.Seq, &id, &number, &amount, &kind, &txDate, &createdAt); err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.ID = ledger.TransactionID(id)
	tx.ClientNumber = ledger.ClientNumber(number)
	tx.Amount = ledger.NewAmount(amount)
	tx.Kind = ledger.TransactionKind(kind)
	d, err := time.Parse(dbDateLayout, txDate)
	if err != nil {
		return tx, fmt.Errorf("transaction %s has invalid date %q: %w", id, txDate, err)
	}
	tx.Date = ledger.DateOf(d)
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return tx, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
