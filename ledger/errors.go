/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds the engine can report, in one place. Every kind is
  recoverable by the caller: correct the input and retry, or show a message.
  Rendering messages is the caller's job, not the engine's.

ERROR KINDS:
  ErrClientNotFound     - client number has no Client record
  ErrInvalidAmount      - zero/negative/fractional where positive is required
  ErrInsufficientFunds  - withdrawal exceeds the combined balance
  ErrNotEligible        - credit grant without eligibility
  ErrPersistenceFailure - store write did not durably complete

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) {
      var ife *ledger.InsufficientFundsError
      errors.As(err, &ife) // available / requested details
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrClientNotFound     = errors.New("client not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotEligible        = errors.New("client not eligible for credit")
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrDuplicateClient is returned by stores when seeding a client number
	// that already exists.
	ErrDuplicateClient = errors.New("duplicate client number")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a rejected withdrawal.
type InsufficientFundsError struct {
	ClientNumber ClientNumber
	Available    Amount
	Requested    Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for client %d: available %s, requested %s",
		e.ClientNumber, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// PersistenceError wraps a store failure. errors.Is matches both
// ErrPersistenceFailure and the underlying cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistenceFailure, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistenceFailure, e.Err}
}

// persistenceError wraps err unless it already is a domain error that the
// caller should see as-is.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrDuplicateClient)
}

// IsNotFound returns true if the error indicates a missing client.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}
