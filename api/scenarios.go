/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built fact sets that populate the ledger with realistic
	data for demos. Each scenario is written in the fact file format and
	loaded through the same importer used for FACTS_FILE at startup.

AVAILABLE SCENARIOS:

	porto-branch:  Porto and Lisboa clients with plain deposits
	credit-line:   A client drawing on a granted credit line
	new-accounts:  Freshly opened accounts with no transactions yet

HOW SCENARIOS WORK:
 1. Parse the scenario's facts
 2. Import clients, transactions and credit balances in one transaction
 3. Write the balance cache of every client

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "credit-line"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and facts
 2. Use client numbers no other scenario uses

NOTE:

	Scenarios never reset data. Loading one whose clients already exist
	fails with 409 and changes nothing.

SEE ALSO:
  - handlers.go: Admin handlers
  - facts/import.go: Importer
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/bank-ledger/facts"
	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario is a named demo data set.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Facts       string
}

var scenarios = []Scenario{
	{
		ID:          "porto-branch",
		Name:        "Porto Branch",
		Description: "Three clients across Porto and Lisboa with plain deposits",
		Facts: `
% Porto branch demo
client(100, 'Ana Silva', 'Baixa', 'Porto', '03-06-2019').
client(101, 'Rui Costa', 'Boavista', 'Porto', '10-02-2021').
client(102, 'Marta Reis', 'Chiado', 'Lisboa', '21-09-2015').

transaction(100, 50, '01-03-2024').
transaction(100, 30, '04-03-2024').
transaction(101, 200, '02-03-2024').
transaction(102, 75, '05-03-2024').
`,
	},
	{
		ID:          "credit-line",
		Name:        "Credit Line",
		Description: "A client who deposited 50, was granted 100 credit and withdrew 120",
		Facts: `
% Real balance -70, combined 30, 70 of the credit line drawn
client(300, 'Joao Lopes', 'Se', 'Braga', '30-11-2018').

transaction(300, 50, '01-02-2024').
transaction(300, -120, '15-02-2024').
credit_balance(300, 100).
`,
	},
	{
		ID:          "new-accounts",
		Name:        "New Accounts",
		Description: "Two accounts opened this year with no transactions",
		Facts: `
client(500, 'Ines Moura', 'Baixa', 'Porto', '08-01-2024').
client(501, 'Tiago Neves', 'Chiado', 'Lisboa', '12-01-2024').
`,
	},
}

func findScenario(id string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario imports a demo scenario into the store.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "scenario_id is required", err)
		return
	}

	scenario, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", errors.New(req.ScenarioID))
		return
	}

	parsed, err := facts.Parse(strings.NewReader(scenario.Facts))
	if err != nil {
		h.writeLedgerError(w, r, "Scenario facts are invalid", err)
		return
	}

	stats, err := facts.NewImporter(h.Store, nil, h.Logger).Import(r.Context(), parsed)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("scenario loaded", zap.String("scenario", scenario.ID), zap.Int("clients", stats.Clients))
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		ScenarioID:   scenario.ID,
		Clients:      stats.Clients,
		Transactions: stats.Transactions,
		Credits:      stats.Credits,
	})
}

// ImportFacts imports a fact file posted as the request body.
func (h *Handler) ImportFacts(w http.ResponseWriter, r *http.Request) {
	parsed, err := facts.Parse(http.MaxBytesReader(w, r.Body, maxFactsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fact file", err)
		return
	}

	stats, err := facts.NewImporter(h.Store, nil, h.Logger).Import(r.Context(), parsed)
	if ledger.IsNotFound(err) {
		writeError(w, http.StatusBadRequest, "Fact file references an unknown client", err)
		return
	}
	if errors.Is(err, facts.ErrForeignClient) {
		writeError(w, http.StatusConflict, "Fact file adds money facts to an existing client", err)
		return
	}
	if err != nil {
		h.writeLedgerError(w, r, "Failed to import facts", err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Clients:      stats.Clients,
		Transactions: stats.Transactions,
		Credits:      stats.Credits,
	})
}

const maxFactsBody = 8 << 20
