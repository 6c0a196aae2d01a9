/*
engine.go - Ledger Engine (composition root)

PURPOSE:
  Orchestrates deposit, withdrawal and credit grant across the transaction
  log, balance calculator and credit subsystem while preserving the ledger
  invariants. Callers (HTTP API, importer, tests) construct one Engine with
  its store and pass it by reference.

OPERATIONS:
  Deposit(n, amount)                  -> new combined balance
  Withdraw(n, amount)                 -> new combined balance
  GrantCredit(n, amount)              -> requires eligibility
  CheckEligibilityAndGrant(n, amount) -> granted bool
  Audit()                             -> cache drift findings

ARITHMETIC (single-counted):
  Deposit:   one transaction +amount; combined += amount
  Withdraw:  rejected when amount > combined; otherwise one transaction
             -amount. When the real balance drops below zero the shortfall
             is the credit draw; the credit line itself is not decremented,
             so combined -= amount exactly.
  Grant:     credit += amount, no transaction; combined += amount exactly.

ATOMICITY AND ISOLATION:
  Each mutation:
    1. acquires the client's lock
    2. runs inside store.WithTx: validate, write transaction/credit,
       rewrite the balance cache
    3. commits (or rolls back everything on any failure)
    4. releases the lock

SEE ALSO:
  - ledger.go, balance.go, credit.go: the components orchestrated here
  - store.go: TxStore contract
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Operation names reported to the Recorder and in logs.
const (
	OpDeposit     = "deposit"
	OpWithdraw    = "withdraw"
	OpGrantCredit = "grant_credit"
)

// Recorder observes completed engine operations (metrics).
type Recorder interface {
	ObserveOperation(op string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, time.Duration, error) {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store     TxStore
	policy    EligibilityPolicy
	matchCity CityMatcher
	clock     Clock
	logger    *zap.Logger
	recorder  Recorder
	locks     *clientLocks
}

type Option func(*Engine)

func WithEligibilityPolicy(p EligibilityPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithCityMatcher(m CityMatcher) Option {
	return func(e *Engine) { e.matchCity = m }
}

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an engine over store. Defaults: DenyAll eligibility,
// exact city match, wall clock, no-op logger and recorder.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		policy:    DenyAll,
		matchCity: ExactCity,
		clock:     time.Now,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
		locks:     newClientLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = DenyAll
	}
	return e
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Directory() *Directory {
	return NewDirectory(e.store, e.matchCity)
}

func (e *Engine) Transactions(ctx context.Context, number ClientNumber) ([]Transaction, error) {
	return NewTransactionLog(e.store, e.clock).ListByClient(ctx, number)
}

func (e *Engine) RealBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	return NewBalanceCalculator(e.store).RealBalance(ctx, number)
}

// CreditBalance returns ClientNotFound for unknown clients, zero when the
// client has no credit record.
func (e *Engine) CreditBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	if _, err := e.store.GetClient(ctx, number); err != nil {
		return Amount{}, err
	}
	return NewBalanceCalculator(e.store).CreditBalance(ctx, number)
}

func (e *Engine) CombinedBalance(ctx context.Context, number ClientNumber) (Amount, error) {
	return NewBalanceCalculator(e.store).CombinedBalance(ctx, number)
}

func (e *Engine) Summary(ctx context.Context, number ClientNumber) (BalanceSummary, error) {
	return NewBalanceCalculator(e.store).Summary(ctx, number)
}

func (e *Engine) IsEligible(ctx context.Context, number ClientNumber) (bool, error) {
	return NewCredit(e.store, e.policy).IsEligible(ctx, number)
}

func (e *Engine) ListEligible(ctx context.Context) ([]Client, error) {
	return NewCredit(e.store, e.policy).ListEligible(ctx)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Deposit records +amount and returns the new combined balance.
func (e *Engine) Deposit(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	start := e.clock()
	combined, err := e.deposit(ctx, number, amount)
	e.finish(OpDeposit, start, number, amount, combined, err)
	return combined, err
}

func (e *Engine) deposit(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	if err := requirePositive(amount, "deposit"); err != nil {
		return Amount{}, err
	}

	unlock := e.locks.lock(number)
	defer unlock()

	var summary BalanceSummary
	err := e.store.WithTx(ctx, func(s Store) error {
		if _, err := NewTransactionLog(s, e.clock).record(ctx, number, amount, Date{}, KindDeposit); err != nil {
			return err
		}
		var err error
		summary, err = e.refreshCache(ctx, s, number)
		return err
	})
	if err != nil {
		return Amount{}, persistenceError("deposit", err)
	}
	return summary.Combined, nil
}

// Withdraw records -amount when amount does not exceed the combined balance
// and returns the new combined balance.
func (e *Engine) Withdraw(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	start := e.clock()
	combined, err := e.withdraw(ctx, number, amount)
	e.finish(OpWithdraw, start, number, amount, combined, err)
	return combined, err
}

func (e *Engine) withdraw(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	if err := requirePositive(amount, "withdrawal"); err != nil {
		return Amount{}, err
	}

	unlock := e.locks.lock(number)
	defer unlock()

	var summary BalanceSummary
	err := e.store.WithTx(ctx, func(s Store) error {
		before, err := NewBalanceCalculator(s).Summary(ctx, number)
		if err != nil {
			return err
		}
		if amount.GreaterThan(before.Combined) {
			return &InsufficientFundsError{
				ClientNumber: number,
				Available:    before.Combined,
				Requested:    amount,
			}
		}
		if _, err := NewTransactionLog(s, e.clock).record(ctx, number, amount.Neg(), Date{}, KindWithdrawal); err != nil {
			return err
		}
		summary, err = e.refreshCache(ctx, s, number)
		return err
	})
	if err != nil {
		return Amount{}, persistenceError("withdraw", err)
	}
	return summary.Combined, nil
}

// GrantCredit increases the client's credit line by amount. The client must
// be eligible under the engine's policy.
func (e *Engine) GrantCredit(ctx context.Context, number ClientNumber, amount Amount) error {
	start := e.clock()
	combined, err := e.grantCredit(ctx, number, amount)
	e.finish(OpGrantCredit, start, number, amount, combined, err)
	return err
}

func (e *Engine) grantCredit(ctx context.Context, number ClientNumber, amount Amount) (Amount, error) {
	if err := requirePositive(amount, "credit grant"); err != nil {
		return Amount{}, err
	}

	unlock := e.locks.lock(number)
	defer unlock()

	var summary BalanceSummary
	err := e.store.WithTx(ctx, func(s Store) error {
		client, err := s.GetClient(ctx, number)
		if err != nil {
			return err
		}
		if !e.policy.Eligible(client) {
			return fmt.Errorf("%w: client %d", ErrNotEligible, number)
		}
		if _, err := NewCredit(s, e.policy).Grant(ctx, number, amount); err != nil {
			return err
		}
		summary, err = e.refreshCache(ctx, s, number)
		return err
	})
	if err != nil {
		return Amount{}, persistenceError("grant credit", err)
	}
	return summary.Combined, nil
}

// CheckEligibilityAndGrant grants credit when the client is eligible.
// A client that is not eligible yields (false, nil); invalid input, unknown
// clients and store failures are errors.
func (e *Engine) CheckEligibilityAndGrant(ctx context.Context, number ClientNumber, amount Amount) (bool, error) {
	if err := requirePositive(amount, "credit grant"); err != nil {
		return false, err
	}
	if _, err := e.store.GetClient(ctx, number); err != nil {
		return false, err
	}
	eligible, err := e.IsEligible(ctx, number)
	if err != nil || !eligible {
		return false, err
	}
	if err := e.GrantCredit(ctx, number, amount); err != nil {
		if errors.Is(err, ErrNotEligible) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// BALANCE CACHE
// =============================================================================

// refreshCache recomputes the client's balances through s and writes the
// cache. Must run inside the same WithTx as the mutation it follows.
func (e *Engine) refreshCache(ctx context.Context, s Store, number ClientNumber) (BalanceSummary, error) {
	summary, err := NewBalanceCalculator(s).Summary(ctx, number)
	if err != nil {
		return BalanceSummary{}, err
	}
	err = s.PutBalanceCache(ctx, BalanceCache{
		ClientNumber:    number,
		RealBalance:     summary.Real,
		CombinedBalance: summary.Combined,
		UpdatedAt:       e.clock().UTC(),
	})
	if err != nil {
		return BalanceSummary{}, persistenceError("put balance cache", err)
	}
	return summary, nil
}

// RefreshCaches rewrites the balance cache of every client. Used after bulk
// imports that write transactions directly to the store.
func (e *Engine) RefreshCaches(ctx context.Context) error {
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return err
	}
	for _, c := range clients {
		unlock := e.locks.lock(c.Number)
		err := e.store.WithTx(ctx, func(s Store) error {
			_, err := e.refreshCache(ctx, s, c.Number)
			return err
		})
		unlock()
		if err != nil {
			return persistenceError("refresh cache", err)
		}
	}
	return nil
}

// AuditFinding reports a client whose cached balance disagrees with the
// recomputed one.
type AuditFinding struct {
	ClientNumber ClientNumber
	Problem      string
	Cached       *BalanceCache
	Actual       BalanceSummary
}

// Audit checks the balance cache of every client against the transaction
// log and credit line. An empty result means the store is consistent.
func (e *Engine) Audit(ctx context.Context) ([]AuditFinding, error) {
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	calc := NewBalanceCalculator(e.store)

	var findings []AuditFinding
	for _, c := range clients {
		actual, err := calc.Summary(ctx, c.Number)
		if err != nil {
			return nil, err
		}
		cache, found, err := e.store.GetBalanceCache(ctx, c.Number)
		if err != nil {
			return nil, err
		}
		switch {
		case !found && (!actual.Real.IsZero() || !actual.Credit.IsZero()):
			findings = append(findings, AuditFinding{ClientNumber: c.Number, Problem: "missing_cache", Actual: actual})
		case found && (!cache.RealBalance.Equal(actual.Real) || !cache.CombinedBalance.Equal(actual.Combined)):
			cached := cache
			findings = append(findings, AuditFinding{ClientNumber: c.Number, Problem: "cache_drift", Cached: &cached, Actual: actual})
		}
	}
	if len(findings) > 0 {
		e.logger.Warn("balance audit found inconsistencies", zap.Int("findings", len(findings)))
	}
	return findings, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requirePositive(amount Amount, what string) error {
	if !amount.IsPositive() || !amount.IsWhole() {
		return fmt.Errorf("%w: %s must be a positive whole amount, got %s", ErrInvalidAmount, what, amount)
	}
	if !amount.InRange() {
		return fmt.Errorf("%w: %s of %s exceeds the maximum of %s", ErrInvalidAmount, what, amount, MaxAmount)
	}
	return nil
}

func (e *Engine) finish(op string, start time.Time, number ClientNumber, amount, combined Amount, err error) {
	e.recorder.ObserveOperation(op, e.clock().Sub(start), err)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("client", int(number)),
		zap.Stringer("amount", amount),
	}
	switch {
	case err == nil:
		e.logger.Info("ledger operation applied", append(fields, zap.Stringer("combined_balance", combined))...)
	case IsClientError(err) || IsNotFound(err):
		e.logger.Info("ledger operation rejected", append(fields, zap.Error(err))...)
	default:
		e.logger.Error("ledger operation failed", append(fields, zap.Error(err))...)
	}
}
