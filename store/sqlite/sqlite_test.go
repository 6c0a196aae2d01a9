package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
	"github.com/warp/bank-ledger/ledger/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.TxStore {
		return newTestStore(t)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	// GIVEN: A file-backed store with a client, a deposit and a credit line
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bank.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveClient(ctx, ledger.Client{
		Number: 100, Name: "Ana", Agency: "Baixa", City: "Porto",
		OpeningDate: ledger.NewDate(2019, time.June, 3),
	}))

	engine := ledger.NewEngine(store, ledger.WithEligibilityPolicy(ledger.AllowAll))
	_, err = engine.Deposit(ctx, 100, ledger.NewAmount(50))
	require.NoError(t, err)
	require.NoError(t, engine.GrantCredit(ctx, 100, ledger.NewAmount(20)))
	require.NoError(t, store.Close())

	// WHEN: The database is reopened
	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	// THEN: Every committed fact is still there
	engine = ledger.NewEngine(reopened)
	summary, err := engine.Summary(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50), summary.Real.Int64())
	assert.Equal(t, int64(20), summary.Credit.Int64())
	assert.Equal(t, int64(70), summary.Combined.Int64())

	findings, err := engine.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestStore_RejectsZeroAmountRow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveClient(ctx, ledger.Client{Number: 1, OpeningDate: ledger.NewDate(2020, 1, 1)}))

	_, err := store.AppendTransaction(ctx, ledger.Transaction{
		ID: "zero", ClientNumber: 1, Amount: ledger.NewAmount(0),
		Kind: ledger.KindDeposit, Date: ledger.NewDate(2024, 1, 1),
	})
	assert.Error(t, err)
}

func TestStore_RejectsTransactionForUnknownClient(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.AppendTransaction(ctx, ledger.Transaction{
		ID: "orphan", ClientNumber: 42, Amount: ledger.NewAmount(10),
		Kind: ledger.KindDeposit, Date: ledger.NewDate(2024, 1, 1),
	})
	assert.Error(t, err)
}

func TestStore_RejectsAmountsOutsideInt64(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveClient(ctx, ledger.Client{Number: 1, OpeningDate: ledger.NewDate(2020, 1, 1)}))
	huge := ledger.NewAmount(9_000_000_000_000_000_000)
	wrapped := huge.Add(huge)

	// GIVEN: A real balance and credit whose sum leaves int64
	err := store.PutBalanceCache(ctx, ledger.BalanceCache{
		ClientNumber: 1, RealBalance: huge, CombinedBalance: wrapped, UpdatedAt: time.Now(),
	})

	// THEN: The write is refused instead of storing a wrapped value
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, found, err := store.GetBalanceCache(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, store.SetCreditBalance(ctx, ledger.CreditBalance{ClientNumber: 1, Amount: wrapped.Neg()}), ledger.ErrInvalidAmount)
	_, err = store.AppendTransaction(ctx, ledger.Transaction{
		ID: "huge", ClientNumber: 1, Amount: wrapped,
		Kind: ledger.KindDeposit, Date: ledger.NewDate(2024, 1, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}
