/*
balance.go - Real and combined balance derivation

PURPOSE:
  Answers "how much does this client have?". Balances are never stored
  truth: they are recomputed from the transaction log and the credit line
  on every read.

BALANCE COMPONENTS:
  Real:      sum of all transaction amounts (0 with no transactions)
  Credit:    the client's credit balance (0 when absent)
  Combined:  Real + Credit, the "available funds" bounding withdrawals
  Drawn:     how far Real is below zero, i.e. the part of the credit line
             currently in use

EXAMPLE:
  Client deposits 50, is granted 100 credit, withdraws 120:
    Real     = 50 - 120 = -70
    Credit   = 100
    Combined = 30
    Drawn    = 70
*/
package ledger

import "context"

// BalanceSummary is what a caller shows the client.
type BalanceSummary struct {
	ClientNumber ClientNumber
	Real         Amount
	Credit       Amount
	Combined     Amount
	Drawn        Amount
}

// BalanceCalculator derives balances from the Fact Store. No side effects.
type BalanceCalculator struct {
	Store Store
}

func NewBalanceCalculator(store Store) *BalanceCalculator {
	return &BalanceCalculator{Store: store}
}

// RealBalance sums the client's transactions. Zero transactions is the normal
// initial state, not an error.
func (bc *BalanceCalculator) RealBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	if _, err := bc.Store.GetClient(ctx, number); err != nil {
		return Amount{}, err
	}
	return bc.Store.SumTransactions(ctx, number)
}

// CreditBalance returns the stored credit line, zero when absent.
func (bc *BalanceCalculator) CreditBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	amount, found, err := bc.Store.GetCreditBalance(ctx, number)
	if err != nil {
		return Amount{}, err
	}
	if !found {
		return NewAmount(0), nil
	}
	return amount, nil
}

// CombinedBalance is RealBalance + CreditBalance.
func (bc *BalanceCalculator) CombinedBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	s, err := bc.Summary(ctx, number)
	if err != nil {
		return Amount{}, err
	}
	return s.Combined, nil
}

// Summary computes every balance component in one pass.
func (bc *BalanceCalculator) Summary(ctx context.Context, number ClientNumber) (BalanceSummary, error) {
	realBal, err := bc.RealBalance(ctx, number)
	if err != nil {
		return BalanceSummary{}, err
	}
	credit, err := bc.CreditBalance(ctx, number)
	if err != nil {
		return BalanceSummary{}, err
	}
	return BalanceSummary{
		ClientNumber: number,
		Real:         realBal,
		Credit:       credit,
		Combined:     realBal.Add(credit),
		Drawn:        realBal.Neg().Max(NewAmount(0)),
	}, nil
}
