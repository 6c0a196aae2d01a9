package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
	"github.com/warp/bank-ledger/ledger/storetest"
)

// Set BANK_LEDGER_TEST_PG_URL to a disposable database to run these tests.
// Every subtest truncates all tables.
func TestStore_Contract(t *testing.T) {
	url := os.Getenv("BANK_LEDGER_TEST_PG_URL")
	if url == "" {
		t.Skip("BANK_LEDGER_TEST_PG_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	storetest.Run(t, func(t *testing.T) ledger.TxStore {
		_, err := store.pool.Exec(ctx,
			"TRUNCATE balance_cache, credit_balances, transactions, clients RESTART IDENTITY CASCADE")
		require.NoError(t, err)
		return store
	})
}

func TestNewPool_EmptyURL(t *testing.T) {
	_, err := NewPool(context.Background(), "")
	require.Error(t, err)
}

func TestRetryAborted(t *testing.T) {
	serialization := fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	uniqueViolation := &pgconn.PgError{Code: "23505"}

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{"success first time", nil, 1, nil},
		{"serialization failure then success", []error{serialization}, 2, nil},
		{"deadlock then success", []error{deadlock}, 2, nil},
		{"gives up after the last attempt", []error{serialization, serialization, serialization, serialization}, maxTxAttempts, serialization},
		{"other errors are not retried", []error{uniqueViolation}, 1, uniqueViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryAborted(context.Background(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryAborted_StopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := retryAborted(ctx, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
