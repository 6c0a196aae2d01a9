/*
Package postgres provides a PostgreSQL-backed implementation of the Fact Store.

PURPOSE:
  Implements ledger.TxStore using a pgx connection pool, for deployments
  where several server processes share one ledger. The schema mirrors
  store/sqlite table for table.

CONCURRENCY:
  The engine serializes mutations per client inside one process. Across
  processes, WithTx runs at SERIALIZABLE isolation so two withdrawals
  racing on the same client cannot both commit against the same balance.
  A serialization failure surfaces as a persistence error and nothing is
  written.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite: Default single-file store
  - ledger/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/bank-ledger/ledger"
)

// Store implements ledger.TxStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool creates a connection pool and checks that the database answers.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config from URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	store := NewWithPool(pool)
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithPool wraps an existing pool. The caller is responsible for the schema.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		number INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		agency TEXT NOT NULL,
		city TEXT NOT NULL,
		opening_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_clients_city ON clients(city);

	CREATE TABLE IF NOT EXISTS transactions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		client_number INTEGER NOT NULL REFERENCES clients(number),
		amount BIGINT NOT NULL CHECK (amount <> 0),
		kind TEXT NOT NULL,
		tx_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_client_seq
		ON transactions(client_number, seq);

	CREATE TABLE IF NOT EXISTS credit_balances (
		client_number INTEGER PRIMARY KEY REFERENCES clients(number),
		amount BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balance_cache (
		client_number INTEGER PRIMARY KEY REFERENCES clients(number),
		real_balance BIGINT NOT NULL,
		combined_balance BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// FACT STORE (ledger.Store interface)
// =============================================================================

func (s *Store) SaveClient(ctx context.Context, c ledger.Client) error {
	return conn{s.pool}.SaveClient(ctx, c)
}

func (s *Store) GetClient(ctx context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	return conn{s.pool}.GetClient(ctx, number)
}

func (s *Store) ListClients(ctx context.Context) ([]ledger.Client, error) {
	return conn{s.pool}.ListClients(ctx)
}

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	return conn{s.pool}.AppendTransaction(ctx, tx)
}

func (s *Store) LoadTransactions(ctx context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	return conn{s.pool}.LoadTransactions(ctx, number)
}

func (s *Store) SumTransactions(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	return conn{s.pool}.SumTransactions(ctx, number)
}

func (s *Store) GetCreditBalance(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	return conn{s.pool}.GetCreditBalance(ctx, number)
}

func (s *Store) SetCreditBalance(ctx context.Context, cb ledger.CreditBalance) error {
	return conn{s.pool}.SetCreditBalance(ctx, cb)
}

func (s *Store) ListCreditBalances(ctx context.Context) ([]ledger.CreditBalance, error) {
	return conn{s.pool}.ListCreditBalances(ctx)
}

func (s *Store) GetBalanceCache(ctx context.Context, number ledger.ClientNumber) (ledger.BalanceCache, bool, error) {
	return conn{s.pool}.GetBalanceCache(ctx, number)
}

func (s *Store) PutBalanceCache(ctx context.Context, cache ledger.BalanceCache) error {
	return conn{s.pool}.PutBalanceCache(ctx, cache)
}

// maxTxAttempts bounds how often WithTx runs fn when PostgreSQL aborts it
// with a serialization failure or deadlock.
const maxTxAttempts = 3

// WithTx executes fn inside a SERIALIZABLE transaction. A transaction the
// server aborts with SQLSTATE 40001 or 40P01 is retried from the start, so
// fn must not keep side effects outside the store between attempts.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	return retryAborted(ctx, func() error { return s.withTxOnce(ctx, fn) })
}

// retryAborted runs attempt up to maxTxAttempts times while it fails with a
// retryable error and ctx is live.
func retryAborted(ctx context.Context, attempt func() error) error {
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		err = attempt()
		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Store) withTxOnce(ctx context.Context, fn func(store ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op (pgx.ErrTxClosed).
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(conn{tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// =============================================================================
// CONN - Statements shared by the pool and pgx.Tx
// =============================================================================

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type conn struct {
	q querier
}

func (c conn) SaveClient(ctx context.Context, cl ledger.Client) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO clients (number, name, agency, city, opening_date)
		VALUES ($1, $2, $3, $4, $5)`,
		int(cl.Number), cl.Name, cl.Agency, cl.City, cl.OpeningDate.Time,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.ErrDuplicateClient
		}
		return fmt.Errorf("failed to save client %d: %w", cl.Number, err)
	}
	return nil
}

func (c conn) GetClient(ctx context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	row := c.q.QueryRow(ctx, `
		SELECT number, name, agency, city, opening_date
		FROM clients WHERE number = $1`, int(number))
	cl, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	return cl, err
}

func (c conn) ListClients(ctx context.Context) ([]ledger.Client, error) {
	rows, err := c.q.Query(ctx, `
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
	err = c.q.QueryRow(ctx, `
		INSERT INTO transactions (id, client_number, amount, kind, tx_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`,
		string(tx.ID), int(tx.ClientNumber), amount, string(tx.Kind),
		tx.Date.Time, tx.CreatedAt.UTC(),
	).Scan(&tx.Seq)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx, nil
}

func (c conn) LoadTransactions(ctx context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	rows, err := c.q.Query(ctx, `
		SELECT seq, id, client_number, amount, kind, tx_date, created_at
		FROM transactions
		WHERE client_number = $1
		ORDER BY seq ASC`, int(number))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		var (
			tx        ledger.Transaction
			id, kind  string
			client    int
			amount    int64
			txDate    time.Time
			createdAt time.Time
		)
		if err := rows.Scan(&tx.Seq, &id, &client, &amount, &kind, &txDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ID = ledger.TransactionID(id)
		tx.ClientNumber = ledger.ClientNumber(client)
		tx.Amount = ledger.NewAmount(amount)
		tx.Kind = ledger.TransactionKind(kind)
		tx.Date = ledger.DateOf(txDate)
		tx.CreatedAt = createdAt.UTC()
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (c conn) SumTransactions(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	var sum int64
	err := c.q.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0)::BIGINT FROM transactions WHERE client_number = $1",
		int(number),
	).Scan(&sum)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return ledger.NewAmount(sum), nil
}

func (c conn) GetCreditBalance(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	var amount int64
	err := c.q.QueryRow(ctx,
		"SELECT amount FROM credit_balances WHERE client_number = $1", int(number),
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = c.q.Exec(ctx, `
		INSERT INTO credit_balances (client_number, amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (client_number) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`,
		int(cb.ClientNumber), amount,
	)
	if err != nil {
		return fmt.Errorf("failed to set credit balance: %w", err)
	}
	return nil
}

func (c conn) ListCreditBalances(ctx context.Context) ([]ledger.CreditBalance, error) {
	rows, err := c.q.Query(ctx,
		"SELECT client_number, amount FROM credit_balances ORDER BY client_number ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query credit balances: %w", err)
	}
	defer rows.Close()

	balances := []ledger.CreditBalance{}
	for rows.Next() {
		var (
			number int
			amount int64
		)
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
		updatedAt             time.Time
	)
	err := c.q.QueryRow(ctx, `
		SELECT real_balance, combined_balance, updated_at
		FROM balance_cache WHERE client_number = $1`, int(number),
	).Scan(&realBalance, &combined, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BalanceCache{}, false, nil
	}
	if err != nil {
		return ledger.BalanceCache{}, false, fmt.Errorf("failed to get balance cache: %w", err)
	}
	return ledger.BalanceCache{
		ClientNumber:    number,
		RealBalance:     ledger.NewAmount(realBalance),
		CombinedBalance: ledger.NewAmount(combined),
		UpdatedAt:       updatedAt.UTC(),
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
	_, err = c.q.Exec(ctx, `
		INSERT INTO balance_cache (client_number, real_balance, combined_balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_number) DO UPDATE SET
			real_balance = EXCLUDED.real_balance,
			combined_balance = EXCLUDED.combined_balance,
			updated_at = EXCLUDED.updated_at`,
		int(cache.ClientNumber), realBalance, combined,
		cache.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put balance cache: %w", err)
	}
	return nil
}

func scanClient(row pgx.Row) (ledger.Client, error) {
	var (
		cl          ledger.Client
		number      int
		openingDate time.Time
	)
	if err := row.Scan(&number, &cl.Name, &cl.Agency, &cl.City, &openingDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cl, err
		}
		return cl, fmt.Errorf("failed to scan client: %w", err)
	}
	cl.Number = ledger.ClientNumber(number)
	cl.OpeningDate = ledger.DateOf(openingDate)
	return cl, nil
}
