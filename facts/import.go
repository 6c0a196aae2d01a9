package facts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/bank-ledger/ledger"
)

// ImportStats summarizes one import.
type ImportStats struct {
	Clients      int
	Transactions int
	Credits      int
	Skipped      int
}

// Importer seeds a store from parsed facts.
type Importer struct {
	Store  ledger.TxStore
	Clock  ledger.Clock
	Logger *zap.Logger
}

func NewImporter(store ledger.TxStore, clock ledger.Clock, logger *zap.Logger) *Importer {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{Store: store, Clock: clock, Logger: logger}
}

// ErrForeignClient is returned when a transaction or credit balance names a
// client the same file does not define. Money facts for existing clients
// must go through the engine.
var ErrForeignClient = errors.New("fact refers to a client not defined in the file")

// Import writes every fact and the resulting balance caches in one store
// transaction. Any invalid fact aborts the whole import: a client that
// already exists (ErrDuplicateClient), a transaction or credit balance for
// an unknown client (ErrClientNotFound) or for a stored client the file does
// not define (ErrForeignClient), a zero or out-of-range transaction amount
// or an out-of-range credit balance (ErrInvalidAmount). Credit balances may
// be negative.
func (im *Importer) Import(ctx context.Context, facts *Facts) (ImportStats, error) {
	var stats ImportStats
	now := im.Clock().UTC()

	defined := make(map[ledger.ClientNumber]bool, len(facts.Clients))
	for _, c := range facts.Clients {
		defined[c.Number] = true
	}

	err := im.Store.WithTx(ctx, func(s ledger.Store) error {
		stats = ImportStats{Skipped: facts.Skipped}

		for _, c := range facts.Clients {
			if err := s.SaveClient(ctx, c); err != nil {
				return fmt.Errorf("client %d: %w", c.Number, err)
			}
			stats.Clients++
		}

		for i, ft := range facts.Transactions {
			if ft.Amount.IsZero() || !ft.Amount.IsWhole() || !ft.Amount.InRange() {
				return fmt.Errorf("transaction %d for client %d: %w: amount %s", i+1, ft.ClientNumber, ledger.ErrInvalidAmount, ft.Amount)
			}
			if err := requireDefined(ctx, s, defined, ft.ClientNumber); err != nil {
				return fmt.Errorf("transaction %d: %w", i+1, err)
			}
			_, err := s.AppendTransaction(ctx, ledger.Transaction{
				ID:           ledger.TransactionID(uuid.NewString()),
				ClientNumber: ft.ClientNumber,
				Amount:       ft.Amount,
				Kind:         ledger.KindImported,
				Date:         ft.Date,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			stats.Transactions++
		}

		for _, cb := range facts.Credits {
			if !cb.Amount.IsWhole() || !cb.Amount.InRange() {
				return fmt.Errorf("credit balance for client %d: %w: amount %s", cb.ClientNumber, ledger.ErrInvalidAmount, cb.Amount)
			}
			if err := requireDefined(ctx, s, defined, cb.ClientNumber); err != nil {
				return fmt.Errorf("credit balance: %w", err)
			}
			if err := s.SetCreditBalance(ctx, cb); err != nil {
				return err
			}
			stats.Credits++
		}

		calc := ledger.NewBalanceCalculator(s)
		for _, c := range facts.Clients {
			summary, err := calc.Summary(ctx, c.Number)
			if err != nil {
				return err
			}
			err = s.PutBalanceCache(ctx, ledger.BalanceCache{
				ClientNumber:    c.Number,
				RealBalance:     summary.Real,
				CombinedBalance: summary.Combined,
				UpdatedAt:       now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, fmt.Errorf("fact import failed: %w", err)
	}

	im.Logger.Info("facts imported",
		zap.Int("clients", stats.Clients),
		zap.Int("transactions", stats.Transactions),
		zap.Int("credit_balances", stats.Credits),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// requireDefined accepts number only when this import defines the client.
func requireDefined(ctx context.Context, s ledger.Store, defined map[ledger.ClientNumber]bool, number ledger.ClientNumber) error {
	if defined[number] {
		return nil
	}
	if _, err := s.GetClient(ctx, number); err != nil {
		return fmt.Errorf("client %d: %w", number, err)
	}
	return fmt.Errorf("client %d: %w", number, ErrForeignClient)
}

// ImportFile parses path and imports it.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	facts, err := ParseFile(path)
	if err != nil {
		return ImportStats{}, err
	}
	return im.Import(ctx, facts)
}
