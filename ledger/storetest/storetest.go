// Package storetest holds the behavior every ledger.TxStore must share.
// Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ledger.TxStore

var errAbort = errors.New("abort")

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ClientRoundTrip", func(t *testing.T) { testClientRoundTrip(t, newStore(t)) })
	t.Run("DuplicateClient", func(t *testing.T) { testDuplicateClient(t, newStore(t)) })
	t.Run("UnknownClient", func(t *testing.T) { testUnknownClient(t, newStore(t)) })
	t.Run("TransactionsInInsertionOrder", func(t *testing.T) { testInsertionOrder(t, newStore(t)) })
	t.Run("CreditUpsert", func(t *testing.T) { testCreditUpsert(t, newStore(t)) })
	t.Run("BalanceCacheUpsert", func(t *testing.T) { testBalanceCache(t, newStore(t)) })
	t.Run("WithTxCommits", func(t *testing.T) { testWithTxCommits(t, newStore(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollsBack(t, newStore(t)) })
}

func client(n ledger.ClientNumber, city string) ledger.Client {
	return ledger.Client{
		Number:      n,
		Name:        "Client",
		Agency:      "Central",
		City:        city,
		OpeningDate: ledger.NewDate(2020, time.January, 15),
	}
}

func transaction(id string, n ledger.ClientNumber, amount int64) ledger.Transaction {
	a := ledger.NewAmount(amount)
	return ledger.Transaction{
		ID:           ledger.TransactionID(id),
		ClientNumber: n,
		Amount:       a,
		Kind:         ledger.KindFor(a),
		Date:         ledger.NewDate(2024, time.March, 12),
		CreatedAt:    time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC),
	}
}

func testClientRoundTrip(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(200, "Lisboa")))
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))

	got, err := s.GetClient(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Porto", got.City)
	assert.True(t, got.OpeningDate.Equal(ledger.NewDate(2020, time.January, 15)))

	all, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.ClientNumber(100), all[0].Number)
	assert.Equal(t, ledger.ClientNumber(200), all[1].Number)
}

func testDuplicateClient(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))
	err := s.SaveClient(ctx, client(100, "Braga"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateClient)
}

func testUnknownClient(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	_, err := s.GetClient(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)

	_, found, err := s.GetCreditBalance(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetBalanceCache(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)
}

func testInsertionOrder(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))
	require.NoError(t, s.SaveClient(ctx, client(200, "Porto")))

	amounts := []int64{50, -20, 10, -5}
	var lastSeq int64
	for i, a := range amounts {
		tx, err := s.AppendTransaction(ctx, transaction(string(rune('a'+i)), 100, a))
		require.NoError(t, err)
		assert.Greater(t, tx.Seq, lastSeq)
		lastSeq = tx.Seq
	}
	_, err := s.AppendTransaction(ctx, transaction("other", 200, 7))
	require.NoError(t, err)

	txs, err := s.LoadTransactions(ctx, 100)
	require.NoError(t, err)
	require.Len(t, txs, len(amounts))
	for i, a := range amounts {
		assert.Equal(t, a, txs[i].Amount.Int64())
	}
	assert.Equal(t, ledger.KindWithdrawal, txs[1].Kind)

	sum, err := s.SumTransactions(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(35), sum.Int64())

	empty, err := s.SumTransactions(ctx, 300)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func testCreditUpsert(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))

	require.NoError(t, s.SetCreditBalance(ctx, ledger.CreditBalance{ClientNumber: 100, Amount: ledger.NewAmount(150)}))
	require.NoError(t, s.SetCreditBalance(ctx, ledger.CreditBalance{ClientNumber: 100, Amount: ledger.NewAmount(350)}))

	got, found, err := s.GetCreditBalance(ctx, 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(350), got.Int64())

	all, err := s.ListCreditBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testBalanceCache(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))

	cache := ledger.BalanceCache{
		ClientNumber:    100,
		RealBalance:     ledger.NewAmount(-70),
		CombinedBalance: ledger.NewAmount(30),
		UpdatedAt:       time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutBalanceCache(ctx, cache))
	cache.CombinedBalance = ledger.NewAmount(40)
	require.NoError(t, s.PutBalanceCache(ctx, cache))

	got, found, err := s.GetBalanceCache(ctx, 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(-70), got.RealBalance.Int64())
	assert.Equal(t, int64(40), got.CombinedBalance.Int64())
}

func testWithTxCommits(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.AppendTransaction(ctx, transaction("t1", 100, 50)); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		sum, err := tx.SumTransactions(ctx, 100)
		if err != nil {
			return err
		}
		return tx.PutBalanceCache(ctx, ledger.BalanceCache{
			ClientNumber: 100, RealBalance: sum, CombinedBalance: sum, UpdatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	cache, found, err := s.GetBalanceCache(ctx, 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(50), cache.RealBalance.Int64())
}

func testWithTxRollsBack(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, client(100, "Porto")))

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.AppendTransaction(ctx, transaction("t1", 100, 50)); err != nil {
			return err
		}
		if err := tx.SetCreditBalance(ctx, ledger.CreditBalance{ClientNumber: 100, Amount: ledger.NewAmount(10)}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	txs, err := s.LoadTransactions(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, found, err := s.GetCreditBalance(ctx, 100)
	require.NoError(t, err)
	assert.False(t, found)
}
