package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
)

func TestEligibilityPolicies(t *testing.T) {
	porto := ledger.Client{Number: 100, Agency: "Baixa", City: "Porto", OpeningDate: ledger.NewDate(2019, time.June, 3)}
	braga := ledger.Client{Number: 400, Agency: "Se", City: "Braga", OpeningDate: ledger.NewDate(2023, time.November, 30)}
	noDate := ledger.Client{Number: 500, City: "Porto"}
	clock := func() time.Time { return time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		policy ledger.EligibilityPolicy
		client ledger.Client
		want   bool
	}{
		{"deny all", ledger.DenyAll, porto, false},
		{"allow all", ledger.AllowAll, porto, true},
		{"allow list hit", ledger.AllowList(100, 300), porto, true},
		{"allow list miss", ledger.AllowList(300), porto, false},
		{"city exact", ledger.InCities("Porto"), porto, true},
		{"city is case sensitive", ledger.InCities("porto"), porto, false},
		{"agency", ledger.InAgencies("Se"), braga, true},
		{"opened before", ledger.OpenedBefore(ledger.NewDate(2020, time.January, 1)), porto, true},
		{"opened after", ledger.OpenedBefore(ledger.NewDate(2020, time.January, 1)), braga, false},
		{"opened before without date", ledger.OpenedBefore(ledger.NewDate(2020, time.January, 1)), noDate, false},
		{"tenure met", ledger.MinTenure(365, clock), porto, true},
		{"tenure not met", ledger.MinTenure(365, clock), braga, false},
		{"tenure without date", ledger.MinTenure(0, clock), noDate, false},
		{"all", ledger.All(ledger.InCities("Porto"), ledger.MinTenure(365, clock)), porto, true},
		{"all fails", ledger.All(ledger.InCities("Porto"), ledger.MinTenure(365, clock)), braga, false},
		{"all empty", ledger.All(), braga, true},
		{"any", ledger.Any(ledger.AllowList(400), ledger.InCities("Lisboa")), braga, true},
		{"any empty", ledger.Any(), braga, false},
		{"not", ledger.Not(ledger.InCities("Braga")), braga, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Eligible(tt.client))
		})
	}
}

func TestListEligible_AscendingNumbers(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, ledger.WithEligibilityPolicy(ledger.InCities("Porto", "Lisboa")))

	clients, err := engine.ListEligible(ctx)
	require.NoError(t, err)

	var numbers []ledger.ClientNumber
	for _, c := range clients {
		numbers = append(numbers, c.Number)
	}
	assert.Equal(t, []ledger.ClientNumber{100, 200, 300}, numbers)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)
	dir := engine.Directory()

	all, err := dir.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ledger.ClientNumber(100), all[0].Number)
	assert.Equal(t, ledger.ClientNumber(400), all[3].Number)

	porto, err := dir.ByCity(ctx, "Porto")
	require.NoError(t, err)
	assert.Len(t, porto, 2)

	c, err := dir.ByNumber(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, "Marta Reis", c.Name)

	_, err = dir.ByNumber(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
}

func TestDirectory_CustomCityMatcher(t *testing.T) {
	ctx := context.Background()
	fold := func(clientCity, query string) bool { return len(clientCity) > 0 && clientCity[0] == query[0] }
	engine, _ := newEngine(t, ledger.WithCityMatcher(fold))

	clients, err := engine.Directory().ByCity(ctx, "B")
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Braga", clients[0].City)
}

func TestTransactionLog_Record(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	log := ledger.NewTransactionLog(s, fixedClock)

	id, err := log.Record(ctx, 100, ledger.NewAmount(-15), ledger.NewDate(2023, time.July, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = log.Record(ctx, 100, ledger.NewAmount(0), ledger.Date{})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = log.Record(ctx, 999, ledger.NewAmount(5), ledger.Date{})
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)

	txs, err := log.ListByClient(ctx, 100)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, id, txs[0].ID)
	assert.Equal(t, ledger.KindWithdrawal, txs[0].Kind)
	assert.Equal(t, "01-07-2023", txs[0].Date.String())
}
