package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "50", want: 50},
		{in: "-20", want: -20},
		{in: "100.00", want: 100},
		{in: "12.5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ledger.ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestAmount_JSONIsPlainNumber(t *testing.T) {
	data, err := json.Marshal(struct {
		Balance ledger.Amount `json:"balance"`
	}{ledger.NewAmount(-70)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance": -70}`, string(data))

	var in struct {
		Amount ledger.Amount `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 250}`), &in))
	assert.Equal(t, int64(250), in.Amount.Int64())
}

func TestAmount_Max(t *testing.T) {
	assert.Equal(t, int64(5), ledger.NewAmount(5).Max(ledger.NewAmount(0)).Int64())
	assert.Equal(t, int64(0), ledger.NewAmount(-5).Max(ledger.NewAmount(0)).Int64())
}

func TestParseDate(t *testing.T) {
	d, err := ledger.ParseDate("12-03-2024")
	require.NoError(t, err)
	assert.True(t, d.Equal(ledger.NewDate(2024, time.March, 12)))
	assert.Equal(t, "12-03-2024", d.String())

	quoted, err := ledger.ParseDate("'01-02-2020'")
	require.NoError(t, err)
	assert.True(t, quoted.Equal(ledger.NewDate(2020, time.February, 1)))

	_, err = ledger.ParseDate("2024-03-12")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	from := ledger.NewDate(2024, time.January, 1)
	assert.Equal(t, 366, ledger.DaysBetween(from, ledger.NewDate(2025, time.January, 1)))
	assert.Equal(t, 0, ledger.DaysBetween(from, from))
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, ledger.KindDeposit, ledger.KindFor(ledger.NewAmount(1)))
	assert.Equal(t, ledger.KindWithdrawal, ledger.KindFor(ledger.NewAmount(-1)))
}

func TestAmount_StoredInt64(t *testing.T) {
	v, err := ledger.NewAmount(-42).StoredInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	huge := ledger.NewAmount(9_000_000_000_000_000_000)
	_, err = huge.Add(huge).StoredInt64()
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	assert.True(t, ledger.MaxAmount.InRange())
	assert.True(t, ledger.MaxAmount.Neg().InRange())
	assert.False(t, ledger.MaxAmount.Add(ledger.NewAmount(1)).InRange())
}
