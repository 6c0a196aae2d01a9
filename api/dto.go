/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers

TYPES:
  Clients:       ClientDTO, ClientRefDTO, ListResponse
  Balances:      BalanceDTO, AmountResponse
  Transactions:  TransactionDTO
  Mutations:     AmountRequest, MutationResponse
  Eligibility:   EligibilityResponse, GrantResponse
  Audit:         AuditFindingDTO
  Scenarios:     ScenarioDTO, LoadScenarioRequest, LoadScenarioResponse

VALIDATION:
  Request types carry go-playground/validator tags, checked in handlers
  before any call into the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Agency      string `json:"agency"`
	City        string `json:"city"`
	OpeningDate string `json:"opening_date"` // dd-MM-yyyy
}

func toClientDTO(c ledger.Client) ClientDTO {
	return ClientDTO{
		Number:      int(c.Number),
		Name:        c.Name,
		Agency:      c.Agency,
		City:        c.City,
		OpeningDate: c.OpeningDate.String(),
	}
}

func toClientDTOs(clients []ledger.Client) []ClientDTO {
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	return dtos
}

// ClientRefDTO is the short form used by the city listing.
type ClientRefDTO struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// ListResponse wraps list endpoints. Message is set when Items is empty.
type ListResponse[T any] struct {
	Items   []T    `json:"items"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is the full balance summary of a client.
type BalanceDTO struct {
	ClientNumber int           `json:"client_number"`
	Real         ledger.Amount `json:"real"`
	Credit       ledger.Amount `json:"credit"`
	Combined     ledger.Amount `json:"combined"`
	CreditDrawn  ledger.Amount `json:"credit_drawn"`
}

func toBalanceDTO(s ledger.BalanceSummary) BalanceDTO {
	return BalanceDTO{
		ClientNumber: int(s.ClientNumber),
		Real:         s.Real,
		Credit:       s.Credit,
		Combined:     s.Combined,
		CreditDrawn:  s.Drawn,
	}
}

// AmountResponse is a single labeled amount, e.g. the real or credit balance.
type AmountResponse struct {
	ClientNumber int           `json:"client_number"`
	Label        string        `json:"label"`
	Amount       ledger.Amount `json:"amount"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID        string        `json:"id"`
	Amount    ledger.Amount `json:"amount"`
	Kind      string        `json:"kind"`
	Date      string        `json:"date"` // dd-MM-yyyy
	CreatedAt time.Time     `json:"created_at"`
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:        string(tx.ID),
			Amount:    tx.Amount,
			Kind:      string(tx.Kind),
			Date:      tx.Date.String(),
			CreatedAt: tx.CreatedAt,
		}
	}
	return dtos
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AmountRequest is the body of deposit, withdrawal and credit requests.
// Amount is a whole number of units and must be positive.
type AmountRequest struct {
	Amount *int64 `json:"amount" validate:"required,gt=0"`
}

// MutationResponse reports the combined balance after a mutation.
type MutationResponse struct {
	ClientNumber    int           `json:"client_number"`
	Operation       string        `json:"operation"`
	Amount          ledger.Amount `json:"amount"`
	CombinedBalance ledger.Amount `json:"combined_balance"`
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

type EligibilityResponse struct {
	ClientNumber int  `json:"client_number"`
	Eligible     bool `json:"eligible"`
}

// GrantResponse reports the outcome of a credit request.
type GrantResponse struct {
	ClientNumber int           `json:"client_number"`
	Granted      bool          `json:"granted"`
	Amount       ledger.Amount `json:"amount"`
	Credit       ledger.Amount `json:"credit"`
	Combined     ledger.Amount `json:"combined"`
	Message      string        `json:"message,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

type AuditFindingDTO struct {
	ClientNumber   int            `json:"client_number"`
	Problem        string         `json:"problem"`
	CachedReal     *ledger.Amount `json:"cached_real,omitempty"`
	CachedCombined *ledger.Amount `json:"cached_combined,omitempty"`
	ActualReal     ledger.Amount  `json:"actual_real"`
	ActualCombined ledger.Amount  `json:"actual_combined"`
}

func toAuditFindingDTOs(findings []ledger.AuditFinding) []AuditFindingDTO {
	dtos := make([]AuditFindingDTO, len(findings))
	for i, f := range findings {
		dto := AuditFindingDTO{
			ClientNumber:   int(f.ClientNumber),
			Problem:        f.Problem,
			ActualReal:     f.Actual.Real,
			ActualCombined: f.Actual.Combined,
		}
		if f.Cached != nil {
			cachedReal, cachedCombined := f.Cached.RealBalance, f.Cached.CombinedBalance
			dto.CachedReal = &cachedReal
			dto.CachedCombined = &cachedCombined
		}
		dtos[i] = dto
	}
	return dtos
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse counts what a scenario or fact import wrote.
type LoadScenarioResponse struct {
	ScenarioID   string `json:"scenario_id,omitempty"`
	Clients      int    `json:"clients"`
	Transactions int    `json:"transactions"`
	Credits      int    `json:"credit_balances"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
