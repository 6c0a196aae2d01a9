/*
handlers.go - HTTP API handlers for the bank ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine. No money arithmetic
  happens here.

ENDPOINTS:
  Clients:
    GET    /api/clients                         List all clients
    GET    /api/clients/eligible                Clients eligible for credit
    GET    /api/cities/{city}/clients           Clients of a city
    GET    /api/clients/{number}                Client details

  Balances:
    GET    /api/clients/{number}/balance        Real, credit, combined, drawn
    GET    /api/clients/{number}/balance/real   Real balance only
    GET    /api/clients/{number}/credit         Credit balance
    GET    /api/clients/{number}/transactions   Transaction history

  Mutations:
    POST   /api/clients/{number}/deposits       Deposit
    POST   /api/clients/{number}/withdrawals    Withdraw (bounded by combined)
    POST   /api/clients/{number}/credit         Grant credit if eligible
    GET    /api/clients/{number}/eligibility    Eligibility check only

  Admin:
    GET    /api/admin/audit                     Balance cache audit
    POST   /api/admin/refresh-cache             Rewrite all balance caches
    GET    /api/admin/export                    Fact file export
    POST   /api/admin/import                    Fact file import

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/load                  Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call the engine
  4. Serialize response
  5. Map domain errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, invalid amount
  - 404: Unknown client
  - 409: Insufficient funds, not eligible for credit
  - 500: Persistence failures

SECURITY NOTE:
  No authentication or authorization. All endpoints are public, and
  requests are rate limited per client IP.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenarios and fact import
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/bank-ledger/facts"
	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	// Store backs fact import and export; everything else goes through Engine.
	Store  ledger.TxStore
	Logger *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler over the given engine and store.
func NewHandler(engine *ledger.Engine, store ledger.TxStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients ordered by number.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Engine.Directory().All(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list clients", err)
		return
	}

	writeJSON(w, http.StatusOK, listOf(toClientDTOs(clients), "No clients registered"))
}

// ListClientsByCity returns number and name of each client in a city.
func (h *Handler) ListClientsByCity(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")

	clients, err := h.Engine.Directory().ByCity(r.Context(), city)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list clients", err)
		return
	}

	refs := make([]ClientRefDTO, len(clients))
	for i, c := range clients {
		refs[i] = ClientRefDTO{Number: int(c.Number), Name: c.Name}
	}
	writeJSON(w, http.StatusOK, listOf(refs, fmt.Sprintf("No clients in %s", city)))
}

// ListEligibleClients returns the clients the eligibility policy accepts.
func (h *Handler) ListEligibleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Engine.ListEligible(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list eligible clients", err)
		return
	}

	writeJSON(w, http.StatusOK, listOf(toClientDTOs(clients), "No clients are eligible for credit"))
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	client, err := h.Engine.Directory().ByNumber(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get client", err)
		return
	}

	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the full balance summary of a client.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Engine.Summary(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(summary))
}

// GetRealBalance returns the sum of a client's transactions.
func (h *Handler) GetRealBalance(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	realBal, err := h.Engine.RealBalance(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get real balance", err)
		return
	}

	writeJSON(w, http.StatusOK, AmountResponse{ClientNumber: int(number), Label: "real", Amount: realBal})
}

// GetCreditBalance returns the client's credit line as a labeled list.
// A client holds at most one credit record, so the list has one entry.
func (h *Handler) GetCreditBalance(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	credit, err := h.Engine.CreditBalance(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get credit balance", err)
		return
	}

	writeJSON(w, http.StatusOK, []AmountResponse{
		{ClientNumber: int(number), Label: "credit", Amount: credit},
	})
}

// ListTransactions returns a client's transactions in insertion order.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	txs, err := h.Engine.Transactions(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, listOf(toTransactionDTOs(txs), fmt.Sprintf("Client %d has no transactions", number)))
}

// =============================================================================
// MUTATION HANDLERS
// =============================================================================

// Deposit records a positive transaction.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ledger.OpDeposit, h.Engine.Deposit)
}

// Withdraw records a negative transaction bounded by the combined balance.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ledger.OpWithdraw, h.Engine.Withdraw)
}

type mutation func(ctx context.Context, number ledger.ClientNumber, amount ledger.Amount) (ledger.Amount, error)

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, apply mutation) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	combined, err := apply(r.Context(), number, amount)
	if err != nil {
		h.writeLedgerError(w, r, fmt.Sprintf("Failed to %s", op), err)
		return
	}

	writeJSON(w, http.StatusCreated, MutationResponse{
		ClientNumber:    int(number),
		Operation:       op,
		Amount:          amount,
		CombinedBalance: combined,
	})
}

// GrantCredit grants credit when the client is eligible. An ineligible
// client gets 409 and no state changes.
func (h *Handler) GrantCredit(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	granted, err := h.Engine.CheckEligibilityAndGrant(ctx, number, amount)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to grant credit", err)
		return
	}
	if !granted {
		writeError(w, http.StatusConflict, "Client is not eligible for credit", ledger.ErrNotEligible)
		return
	}

	summary, err := h.Engine.Summary(ctx, number)
	if err != nil {
		h.writeLedgerError(w, r, "Credit granted but balance unavailable", err)
		return
	}

	writeJSON(w, http.StatusOK, GrantResponse{
		ClientNumber: int(number),
		Granted:      true,
		Amount:       amount,
		Credit:       summary.Credit,
		Combined:     summary.Combined,
	})
}

// GetEligibility reports whether a client may be granted credit.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	number, ok := clientNumberParam(w, r)
	if !ok {
		return
	}

	eligible, err := h.Engine.IsEligible(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to check eligibility", err)
		return
	}

	writeJSON(w, http.StatusOK, EligibilityResponse{ClientNumber: int(number), Eligible: eligible})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetAudit compares every balance cache with the recomputed balances.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Engine.Audit(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to audit balances", err)
		return
	}

	writeJSON(w, http.StatusOK, listOf(toAuditFindingDTOs(findings), "All balance caches are consistent"))
}

// RefreshCaches rewrites the balance cache of every client.
func (h *Handler) RefreshCaches(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RefreshCaches(r.Context()); err != nil {
		h.writeLedgerError(w, r, "Failed to refresh balance caches", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ExportFacts writes the store as a fact file.
func (h *Handler) ExportFacts(w http.ResponseWriter, r *http.Request) {
	// Buffered so a failed export still gets a JSON error response.
	var buf bytes.Buffer
	if err := facts.Export(r.Context(), h.Store, &buf); err != nil {
		h.writeLedgerError(w, r, "Failed to export facts", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="bank.pl"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps engine errors to HTTP statuses. Server-side
// failures are logged; caller mistakes are not.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message,
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		// Store internals stay in the log.
		writeError(w, status, message, ledger.ErrPersistenceFailure)
		return
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrNotEligible),
		errors.Is(err, ledger.ErrDuplicateClient):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func clientNumberParam(w http.ResponseWriter, r *http.Request) (ledger.ClientNumber, bool) {
	raw := chi.URLParam(r, "number")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid client number", fmt.Errorf("%q is not a positive integer", raw))
		return 0, false
	}
	return ledger.ClientNumber(n), true
}

func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (ledger.Amount, bool) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return ledger.Amount{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Amount must be a positive whole number", fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err))
		return ledger.Amount{}, false
	}
	return ledger.NewAmount(*req.Amount), true
}

func listOf[T any](items []T, emptyMessage string) ListResponse[T] {
	resp := ListResponse[T]{Items: items}
	if len(items) == 0 {
		resp.Items = []T{}
		resp.Message = emptyMessage
	}
	return resp
}
