/*
store.go - Fact Store interfaces

PURPOSE:
  Defines the interface between the ledger engine and durable storage.
  The Fact Store is the single source of truth for clients, transactions,
  credit balances and the cached balance copy.

KEY INTERFACES:
  ClientStore:      Client identity records (seeded at load time)
  TransactionStore: Append-only transaction log
  CreditStore:      One credit balance record per client
  BalanceStore:     Cached real/combined balance per client
  TxStore:          Atomic multi-record writes

APPEND-ONLY CONTRACT:
  Transactions are only ever appended. There is no Update or Delete for
  transactions or clients.

ATOMICITY:
  Every money mutation writes a transaction (or credit record) AND the
  balance cache. Both happen inside WithTx: either both are committed or
  neither is visible to later reads.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go: SQLite, durable
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - ledger.go: Transaction Log on top of TransactionStore
  - engine.go: Uses WithTx for every mutation
*/
package ledger

import "context"

// ClientStore persists client identity records.
type ClientStore interface {
	// SaveClient inserts a client. Returns ErrDuplicateClient if the number exists.
	SaveClient(ctx context.Context, c Client) error

	// GetClient returns ErrClientNotFound if the number has no record.
	GetClient(ctx context.Context, number ClientNumber) (Client, error)

	// ListClients returns all clients ordered by ascending number.
	ListClients(ctx context.Context) ([]Client, error)
}

// TransactionStore handles persistence of transactions.
// IMPORTANT: append-only. No Update, no Delete.
type TransactionStore interface {
	// AppendTransaction persists tx and returns it with Seq assigned.
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// LoadTransactions returns a client's transactions in insertion order.
	LoadTransactions(ctx context.Context, number ClientNumber) ([]Transaction, error)

	// SumTransactions returns the sum of a client's amounts (zero if none).
	SumTransactions(ctx context.Context, number ClientNumber) (Amount, error)
}

// CreditStore persists one credit balance per client.
type CreditStore interface {
	// GetCreditBalance returns found=false when the client has no record.
	GetCreditBalance(ctx context.Context, number ClientNumber) (amount Amount, found bool, err error)

	SetCreditBalance(ctx context.Context, cb CreditBalance) error

	// ListCreditBalances returns all records ordered by client number.
	ListCreditBalances(ctx context.Context) ([]CreditBalance, error)
}

// BalanceStore persists the cached balance copy.
type BalanceStore interface {
	GetBalanceCache(ctx context.Context, number ClientNumber) (cache BalanceCache, found bool, err error)
	PutBalanceCache(ctx context.Context, cache BalanceCache) error
}

// Store is the full Fact Store.
type Store interface {
	ClientStore
	TransactionStore
	CreditStore
	BalanceStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed durably before WithTx returns.
	WithTx(ctx context.Context, fn func(Store) error) error
}
