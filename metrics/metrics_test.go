package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
)

func TestCollector_ObserveOperation(t *testing.T) {
	c := NewCollector("bank_ledger")
	registry := prometheus.NewRegistry()
	require.NoError(t, c.Register(registry))

	c.ObserveOperation(ledger.OpDeposit, 2*time.Millisecond, nil)
	c.ObserveOperation(ledger.OpDeposit, time.Millisecond, nil)
	c.ObserveOperation(ledger.OpWithdraw, time.Millisecond, &ledger.InsufficientFundsError{ClientNumber: 1})
	c.ObserveOperation(ledger.OpWithdraw, time.Millisecond, fmt.Errorf("client 9: %w", ledger.ErrClientNotFound))
	c.ObserveOperation(ledger.OpGrantCredit, time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues(ledger.OpDeposit, ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues(ledger.OpWithdraw, ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues(ledger.OpWithdraw, ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues(ledger.OpGrantCredit, ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues(ledger.OpWithdraw, "insufficient_funds")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.duration))
}

func TestCollector_RegisterTwiceFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, NewCollector("bank_ledger").Register(registry))
	assert.Error(t, NewCollector("bank_ledger").Register(registry))
}

func TestCollector_ObserveHTTPAndAudit(t *testing.T) {
	c := NewCollector("bank_ledger")
	require.NoError(t, c.Register(prometheus.NewRegistry()))

	c.ObserveHTTP("POST", "/api/clients/{number}/deposits", 201, 3*time.Millisecond)
	c.ObserveHTTP("POST", "/api/clients/{number}/deposits", 409, time.Millisecond)
	c.SetAuditFindings(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/clients/{number}/deposits", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/clients/{number}/deposits", "409")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.auditDrift))
}
