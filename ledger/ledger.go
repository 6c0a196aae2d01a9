/*
ledger.go - Append-only transaction log

PURPOSE:
  The transaction log is the immutable source of truth for a client's real
  balance. Every deposit and withdrawal is one entry. The real balance is
  always computed by summing entries; the cached copy in BalanceStore only
  mirrors it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. NON-ZERO: A zero amount moves no money and is rejected.
  3. REFERENTIAL: Every entry references an existing client.

ORDERING:
  Entries are listed in insertion order. They are NOT sorted by date;
  callers must not assume chronological order beyond insertion order.

SEE ALSO:
  - store.go: TransactionStore persistence
  - balance.go: Real balance = sum of this log
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionLog records and lists a client's transactions.
type TransactionLog struct {
	Store Store
	Clock Clock
}

func NewTransactionLog(store Store, clock Clock) *TransactionLog {
	if clock == nil {
		clock = time.Now
	}
	return &TransactionLog{Store: store, Clock: clock}
}

// Record appends a transaction for the client. A zero date defaults to
// today. The amount may be positive (deposit) or negative (withdrawal).
func (l *TransactionLog) Record(ctx context.Context, number ClientNumber, amount Amount, date Date) (TransactionID, error) {
	tx, err := l.record(ctx, number, amount, date, KindFor(amount))
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (l *TransactionLog) record(ctx context.Context, number ClientNumber, amount Amount, date Date, kind TransactionKind) (Transaction, error) {
	if amount.IsZero() || !amount.IsWhole() || !amount.InRange() {
		return Transaction{}, fmt.Errorf("%w: transaction amount %s", ErrInvalidAmount, amount)
	}
	if _, err := l.Store.GetClient(ctx, number); err != nil {
		return Transaction{}, err
	}

	now := l.Clock()
	if date.IsZero() {
		date = DateOf(now)
	}

	tx, err := l.Store.AppendTransaction(ctx, Transaction{
		ID:           TransactionID(uuid.NewString()),
		ClientNumber: number,
		Amount:       amount,
		Kind:         kind,
		Date:         date,
		CreatedAt:    now.UTC(),
	})
	if err != nil {
		return Transaction{}, persistenceError("append transaction", err)
	}
	return tx, nil
}

// ListByClient returns the client's transactions in insertion order.
func (l *TransactionLog) ListByClient(ctx context.Context, number ClientNumber) ([]Transaction, error) {
	if _, err := l.Store.GetClient(ctx, number); err != nil {
		return nil, err
	}
	return l.Store.LoadTransactions(ctx, number)
}
