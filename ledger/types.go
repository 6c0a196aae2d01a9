/*
Package ledger provides the bank ledger and credit eligibility engine.

PURPOSE:
  This package holds the durable fact model of a small retail bank (clients,
  transactions, credit balances) and the operations that mutate it under
  correctness invariants. Storage backends, the HTTP API and the fact file
  importer all sit on top of the types defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A whole-unit money quantity (decimal backed, no currency)
  - Client: Identity record, immutable after load
  - Transaction: An append-only, dated monetary movement
  - CreditBalance / BalanceCache: Per-client money records

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified or deleted
  2. Derivation: Real balance is the sum of transactions, never stored truth
  3. Precision: decimal.Decimal, whole units only
  4. Explicit wiring: an Engine is constructed with its store, no globals

USAGE:
  tx := ledger.Transaction{
      ClientNumber: 100,
      Amount:       ledger.NewAmount(50),
      Kind:         ledger.KindDeposit,
      Date:         ledger.NewDate(2024, time.March, 12),
  }

SEE ALSO:
  - store.go: Fact Store interfaces
  - engine.go: Deposit, Withdraw and credit grant operations
  - balance.go: Real and combined balance derivation
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Whole-unit money quantity
// =============================================================================

// Amount is a signed money quantity. Ledger amounts are whole units; the
// decimal representation keeps arithmetic exact when values come from text.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

// ParseAmount parses a textual amount. Fractional values are rejected with
// ErrInvalidAmount because the ledger only records whole units.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	a := Amount{Value: d}
	if !a.IsWhole() {
		return Amount{}, fmt.Errorf("%w: %s is not a whole amount", ErrInvalidAmount, s)
	}
	return a, nil
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) IsWhole() bool             { return a.Value.Equal(a.Value.Truncate(0)) }
func (a Amount) Int64() int64              { return a.Value.IntPart() }
func (a Amount) String() string            { return a.Value.String() }

// MaxAmount bounds the magnitude of any single deposit, withdrawal, grant or
// imported fact, leaving room for balances to sum without leaving int64.
var MaxAmount = NewAmount(1_000_000_000_000_000)

var (
	minStored = decimal.NewFromInt(math.MinInt64)
	maxStored = decimal.NewFromInt(math.MaxInt64)
)

// InRange reports whether |a| <= MaxAmount.
func (a Amount) InRange() bool { return a.Value.Abs().LessThanOrEqual(MaxAmount.Value) }

// StoredInt64 converts a for an integer column. Fractional amounts and
// amounts outside int64 wrap ErrInvalidAmount instead of truncating.
func (a Amount) StoredInt64() (int64, error) {
	if !a.IsWhole() || a.Value.LessThan(minStored) || a.Value.GreaterThan(maxStored) {
		return 0, fmt.Errorf("%w: %s does not fit a stored amount", ErrInvalidAmount, a)
	}
	return a.Value.IntPart(), nil
}

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MarshalJSON writes the amount as a plain JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Value.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	a.Value = d
	return nil
}

// =============================================================================
// CLIENT - Identity record, independent of money state
// =============================================================================

// ClientNumber is the unique, stable key of a client.
type ClientNumber int

type Client struct {
	Number      ClientNumber
	Name        string
	Agency      string
	City        string
	OpeningDate Date
}

// =============================================================================
// TRANSACTION - Append-only monetary movement
// =============================================================================

type TransactionID string

type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
	// KindImported marks transactions loaded from fact files, whose origin
	// operation is unknown.
	KindImported TransactionKind = "imported"
)

// KindFor returns the kind matching the sign of an amount.
func KindFor(amount Amount) TransactionKind {
	if amount.IsNegative() {
		return KindWithdrawal
	}
	return KindDeposit
}

type Transaction struct {
	ID           TransactionID
	ClientNumber ClientNumber
	Amount       Amount
	Kind         TransactionKind
	Date         Date

	// Seq is assigned by the store on append and gives stable insertion order.
	Seq       int64
	CreatedAt time.Time
}

// =============================================================================
// CREDIT AND CACHED BALANCES
// =============================================================================

// CreditBalance is the credit line of a client. Absent records read as zero.
type CreditBalance struct {
	ClientNumber ClientNumber
	Amount       Amount
}

// BalanceCache is the persisted copy of a client's real and combined balance.
// It is written together with every money mutation and is never read as
// truth; Audit compares it with the recomputed values.
type BalanceCache struct {
	ClientNumber    ClientNumber
	RealBalance     Amount
	CombinedBalance Amount
	UpdatedAt       time.Time
}
