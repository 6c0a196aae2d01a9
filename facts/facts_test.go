package facts

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/ledger"
	"github.com/warp/bank-ledger/ledger/store"
)

const sample = `
% Bank facts
:- dynamic transaction/3.

client(100, 'Ana Silva', 'Baixa', 'Porto', '03-06-2019').
client(200, 'Rui D''Costa', 'Boavista', 'Porto', '10-02-2021').
client(300, 'Marta Reis', 'Chiado', 'Lisboa', 21-09-2015).

/* transactions
   in insertion order */
transaction(100, 50, '12-03-2024').
transaction(100, -20, '13-03-2024'). % cash
transaction(200, 40, '01-01-2024').

credit_balance(300, 200).

get_real_balance(N, B) :- findall(A, transaction(N, A, _), L), sum_list(L, B).
branch('Porto').
`

var clock = func() time.Time { return time.Date(2024, time.March, 14, 8, 0, 0, 0, time.UTC) }

func TestParse(t *testing.T) {
	facts, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, facts.Clients, 3)
	assert.Equal(t, "Rui D'Costa", facts.Clients[1].Name)
	assert.Equal(t, "Lisboa", facts.Clients[2].City)
	assert.Equal(t, "21-09-2015", facts.Clients[2].OpeningDate.String())

	require.Len(t, facts.Transactions, 3)
	assert.Equal(t, int64(-20), facts.Transactions[1].Amount.Int64())
	assert.Equal(t, "13-03-2024", facts.Transactions[1].Date.String())

	require.Len(t, facts.Credits, 1)
	assert.Equal(t, int64(200), facts.Credits[0].Amount.Int64())

	assert.Equal(t, 1, facts.Skipped)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong arity", "client(1, 'A', 'B', 'C')."},
		{"bad number", "transaction(abc, 5, '01-01-2024')."},
		{"fractional amount", "transaction(1, 2.5, '01-01-2024')."},
		{"bad date", "transaction(1, 5, '2024-01-01')."},
		{"unterminated quote", "client(1, 'A, 'B', 'C', '01-01-2020')."},
		{"missing full stop", "credit_balance(1, 5)"},
		{"unterminated comment", "/* nothing ends"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestImport_SeedsStoreWithConsistentCaches(t *testing.T) {
	// GIVEN: The sample facts
	ctx := context.Background()
	facts, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	s := store.NewTxMemory()

	// WHEN: Imported
	stats, err := NewImporter(s, clock, nil).Import(ctx, facts)

	// THEN: Everything is in the store and the engine sees no drift
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Clients: 3, Transactions: 3, Credits: 1, Skipped: 1}, stats)

	engine := ledger.NewEngine(s)
	summary, err := engine.Summary(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(30), summary.Real.Int64())

	summary, err = engine.Summary(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(200), summary.Combined.Int64())

	txs, err := engine.Transactions(ctx, 100)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.KindImported, txs[0].Kind)

	findings, err := engine.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestImport_RejectsUnknownClientAtomically(t *testing.T) {
	ctx := context.Background()
	facts, err := Parse(strings.NewReader(`
client(1, 'A', 'B', 'C', '01-01-2020').
transaction(1, 10, '01-01-2024').
transaction(2, 10, '01-01-2024').
`))
	require.NoError(t, err)
	s := store.NewTxMemory()

	_, err = NewImporter(s, clock, nil).Import(ctx, facts)

	require.ErrorIs(t, err, ledger.ErrClientNotFound)
	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestImport_RejectsZeroTransaction(t *testing.T) {
	ctx := context.Background()
	facts, err := Parse(strings.NewReader("client(1, 'A', 'B', 'C', '01-01-2020').\ntransaction(1, 0, '01-01-2024').\n"))
	require.NoError(t, err)

	_, err = NewImporter(store.NewTxMemory(), clock, nil).Import(ctx, facts)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestExport_RoundTrip(t *testing.T) {
	// GIVEN: A store seeded from facts and then mutated through the engine
	ctx := context.Background()
	facts, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	src := store.NewTxMemory()
	_, err = NewImporter(src, clock, nil).Import(ctx, facts)
	require.NoError(t, err)

	engine := ledger.NewEngine(src, ledger.WithClock(clock), ledger.WithEligibilityPolicy(ledger.AllowAll))
	_, err = engine.Deposit(ctx, 200, ledger.NewAmount(15))
	require.NoError(t, err)
	require.NoError(t, engine.GrantCredit(ctx, 100, ledger.NewAmount(25)))

	// WHEN: Exported and imported into a fresh store
	var buf bytes.Buffer
	require.NoError(t, Export(ctx, src, &buf))

	reloaded, err := Parse(&buf)
	require.NoError(t, err)
	dst := store.NewTxMemory()
	_, err = NewImporter(dst, clock, nil).Import(ctx, reloaded)
	require.NoError(t, err)

	// THEN: Every client has the same balances and transaction history
	before, err := Collect(ctx, src)
	require.NoError(t, err)
	after, err := Collect(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, before.Clients, after.Clients)
	require.Len(t, after.Transactions, len(before.Transactions))
	for i := range before.Transactions {
		assert.Equal(t, before.Transactions[i].ClientNumber, after.Transactions[i].ClientNumber)
		assert.True(t, before.Transactions[i].Amount.Equal(after.Transactions[i].Amount))
		assert.True(t, before.Transactions[i].Date.Equal(after.Transactions[i].Date))
	}

	reloadedEngine := ledger.NewEngine(dst)
	for _, n := range []ledger.ClientNumber{100, 200, 300} {
		want, err := engine.Summary(ctx, n)
		require.NoError(t, err)
		got, err := reloadedEngine.Summary(ctx, n)
		require.NoError(t, err)
		assert.True(t, want.Combined.Equal(got.Combined), "client %d", n)
		assert.True(t, want.Real.Equal(got.Real), "client %d", n)
	}
}

func TestWrite_QuotesAtoms(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, &Facts{Clients: []ledger.Client{{
		Number: 7, Name: "O'Neil", Agency: "Se", City: "Braga", OpeningDate: ledger.NewDate(2020, time.May, 4),
	}}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "client(7, 'O''Neil', 'Se', 'Braga', '04-05-2020').")
}

func TestImport_NegativeCreditBalance(t *testing.T) {
	// GIVEN: A legacy file whose client owes on the credit line
	ctx := context.Background()
	facts, err := Parse(strings.NewReader(`
client(1, 'A', 'B', 'C', '01-01-2020').
transaction(1, 80, '01-01-2024').
credit_balance(1, -50).
`))
	require.NoError(t, err)
	s := store.NewTxMemory()

	// WHEN: Imported
	stats, err := NewImporter(s, clock, nil).Import(ctx, facts)

	// THEN: The credit is kept as is and reduces the combined balance
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Credits)
	summary, err := ledger.NewEngine(s).Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(80), summary.Real.Int64())
	assert.Equal(t, int64(-50), summary.Credit.Int64())
	assert.Equal(t, int64(30), summary.Combined.Int64())
}

func TestImport_RejectsMoneyFactsForClientsOutsideTheFile(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"transaction", "transaction(1, -1000, '02-01-2024')."},
		{"credit balance", "credit_balance(1, 5000)."},
		{"alongside a new client", "client(2, 'N', 'B', 'C', '01-01-2020').\ntransaction(1, -1000, '02-01-2024')."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: Client 1 seeded with a balance of 10
			ctx := context.Background()
			s := store.NewTxMemory()
			seed, err := Parse(strings.NewReader("client(1, 'A', 'B', 'C', '01-01-2020').\ntransaction(1, 10, '01-01-2024').\n"))
			require.NoError(t, err)
			_, err = NewImporter(s, clock, nil).Import(ctx, seed)
			require.NoError(t, err)

			// WHEN: A second file touches client 1
			second, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			_, err = NewImporter(s, clock, nil).Import(ctx, second)

			// THEN: The import fails and nothing changed
			require.ErrorIs(t, err, ErrForeignClient)
			summary, err := ledger.NewEngine(s).Summary(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(10), summary.Combined.Int64())
			clients, err := s.ListClients(ctx)
			require.NoError(t, err)
			assert.Len(t, clients, 1)
		})
	}
}

func TestImport_RejectsOutOfRangeAmounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"transaction", "transaction(1, 9000000000000000000, '01-01-2024')."},
		{"credit balance", "credit_balance(1, -9000000000000000000)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := Parse(strings.NewReader("client(1, 'A', 'B', 'C', '01-01-2020').\n" + tt.input))
			require.NoError(t, err)
			s := store.NewTxMemory()

			_, err = NewImporter(s, clock, nil).Import(context.Background(), facts)

			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
			clients, err := s.ListClients(context.Background())
			require.NoError(t, err)
			assert.Empty(t, clients)
		})
	}
}

func TestExport_RoundTripKeepsBackslashes(t *testing.T) {
	// GIVEN: Names holding backslashes, one trailing, one beside a quote
	ctx := context.Background()
	src := store.NewTxMemory()
	opened := ledger.NewDate(2020, time.May, 4)
	for _, c := range []ledger.Client{
		{Number: 1, Name: `A\B`, Agency: `Se\`, City: "Braga", OpeningDate: opened},
		{Number: 2, Name: `O\'Neil`, Agency: `\\`, City: `Porto\`, OpeningDate: opened},
	} {
		require.NoError(t, src.SaveClient(ctx, c))
	}

	// WHEN: Exported and parsed back
	var buf bytes.Buffer
	require.NoError(t, Export(ctx, src, &buf))
	reloaded, err := Parse(&buf)

	// THEN: Every name survives unchanged
	require.NoError(t, err, buf.String())
	before, err := src.ListClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, reloaded.Clients)
}
