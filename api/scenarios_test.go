/*
scenarios_test.go - Unit tests for demo scenarios and fact import

PURPOSE:
	Tests that each scenario loads through the importer and leaves the
	balances its description promises, and that a rejected import leaves
	the store untouched.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bank-ledger/facts"
	"github.com/warp/bank-ledger/ledger/store"
)

func newEmptyTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewTxMemory()
	return newTestServerWithStore(t, s, s, RouterOptions{})
}

func TestScenarios_AllParse(t *testing.T) {
	ids := map[string]bool{}
	numbers := map[int]string{}
	for _, s := range scenarios {
		require.False(t, ids[s.ID], "duplicate scenario id %s", s.ID)
		ids[s.ID] = true

		parsed, err := facts.Parse(strings.NewReader(s.Facts))
		require.NoError(t, err, s.ID)
		assert.NotEmpty(t, parsed.Clients, s.ID)
		for _, c := range parsed.Clients {
			owner, taken := numbers[int(c.Number)]
			assert.False(t, taken, "client %d used by %s and %s", c.Number, owner, s.ID)
			numbers[int(c.Number)] = s.ID
		}
	}
}

func TestListScenarios(t *testing.T) {
	ts := newEmptyTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", "")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(scenarios))
}

func TestLoadScenario_CreditLine(t *testing.T) {
	// GIVEN: An empty store
	ts := newEmptyTestServer(t)

	// WHEN: Loading the credit-line scenario
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "credit-line"}`)

	// THEN: Client 300 has drawn 70 of a 100 credit line
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoadScenarioResponse](t, rec)
	assert.Equal(t, LoadScenarioResponse{ScenarioID: "credit-line", Clients: 1, Transactions: 2, Credits: 1}, resp)

	balance := decode[BalanceDTO](t, ts.do(t, http.MethodGet, "/api/clients/300/balance", ""))
	assert.Equal(t, "-70", balance.Real.String())
	assert.Equal(t, "100", balance.Credit.String())
	assert.Equal(t, "30", balance.Combined.String())
	assert.Equal(t, "70", balance.CreditDrawn.String())

	// Balance caches were written by the import.
	audit := decode[ListResponse[AuditFindingDTO]](t, ts.do(t, http.MethodGet, "/api/admin/audit", ""))
	assert.Empty(t, audit.Items)
}

func TestLoadScenario_TwiceIsConflict(t *testing.T) {
	ts := newEmptyTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "porto-branch"}`).Code)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "porto-branch"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	txs, err := ts.store.LoadTransactions(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestLoadScenario_BadRequests(t *testing.T) {
	ts := newEmptyTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "black-friday"}`).Code)
}

func TestImportFacts(t *testing.T) {
	ts := newEmptyTestServer(t)
	body := `
client(700, 'O''Neil', 'Baixa', 'Porto', '01-01-2020').
transaction(700, 25, '02-01-2020').
`

	rec := ts.do(t, http.MethodPost, "/api/admin/import", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	client := decode[ClientDTO](t, ts.do(t, http.MethodGet, "/api/clients/700", ""))
	assert.Equal(t, "O'Neil", client.Name)
}

func TestImportFacts_UnknownClientChangesNothing(t *testing.T) {
	ts := newEmptyTestServer(t)
	body := `
client(700, 'Ana', 'Baixa', 'Porto', '01-01-2020').
transaction(701, 25, '02-01-2020').
`

	rec := ts.do(t, http.MethodPost, "/api/admin/import", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/clients/700", "").Code)
}

func TestImportFacts_SyntaxError(t *testing.T) {
	ts := newEmptyTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/import", `client(700, 'Ana'`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportFacts_ExistingClientIsConflict(t *testing.T) {
	// GIVEN: Client 300 seeded by the credit-line scenario
	ts := newEmptyTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "credit-line"}`).Code)

	// WHEN: A fact file adds a withdrawal for client 300 without defining it
	rec := ts.do(t, http.MethodPost, "/api/admin/import", `transaction(300, -1000, '02-01-2024').`)

	// THEN: It is refused and the balance is untouched
	assert.Equal(t, http.StatusConflict, rec.Code)
	balance := decode[BalanceDTO](t, ts.do(t, http.MethodGet, "/api/clients/300/balance", ""))
	assert.Equal(t, "30", balance.Combined.String())
	txs, err := ts.store.LoadTransactions(context.Background(), 300)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}
