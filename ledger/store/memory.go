// Package store provides in-memory Fact Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func (m *Memory) SaveClient(ctx context.Context, c ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveClient(ctx, c)
}

func (m *Memory) GetClient(ctx context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetClient(ctx, number)
}

func (m *Memory) ListClients(ctx context.Context) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListClients(ctx)
}

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendTransaction(ctx, tx)
}

func (m *Memory) LoadTransactions(ctx context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoadTransactions(ctx, number)
}

func (m *Memory) SumTransactions(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.SumTransactions(ctx, number)
}

func (m *Memory) GetCreditBalance(ctx context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetCreditBalance(ctx, number)
}

func (m *Memory) SetCreditBalance(ctx context.Context, cb ledger.CreditBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetCreditBalance(ctx, cb)
}

func (m *Memory) ListCreditBalances(ctx context.Context) ([]ledger.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListCreditBalances(ctx)
}

func (m *Memory) GetBalanceCache(ctx context.Context, number ledger.ClientNumber) (ledger.BalanceCache, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetBalanceCache(ctx, number)
}

func (m *Memory) PutBalanceCache(ctx context.Context, cache ledger.BalanceCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.PutBalanceCache(ctx, cache)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.snapshot()
	if err := fn(tm.state); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - Unlocked maps; callers hold Memory.mu
// =============================================================================

type memoryState struct {
	clients      map[ledger.ClientNumber]ledger.Client
	transactions map[ledger.ClientNumber][]ledger.Transaction
	credits      map[ledger.ClientNumber]ledger.Amount
	caches       map[ledger.ClientNumber]ledger.BalanceCache
	seq          int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		clients:      make(map[ledger.ClientNumber]ledger.Client),
		transactions: make(map[ledger.ClientNumber][]ledger.Transaction),
		credits:      make(map[ledger.ClientNumber]ledger.Amount),
		caches:       make(map[ledger.ClientNumber]ledger.BalanceCache),
	}
}

func (s *memoryState) snapshot() *memoryState {
	cp := newMemoryState()
	for k, v := range s.clients {
		cp.clients[k] = v
	}
	for k, v := range s.transactions {
		cp.transactions[k] = append([]ledger.Transaction{}, v...)
	}
	for k, v := range s.credits {
		cp.credits[k] = v
	}
	for k, v := range s.caches {
		cp.caches[k] = v
	}
	cp.seq = s.seq
	return cp
}

func (s *memoryState) SaveClient(_ context.Context, c ledger.Client) error {
	if _, ok := s.clients[c.Number]; ok {
		return ledger.ErrDuplicateClient
	}
	s.clients[c.Number] = c
	return nil
}

func (s *memoryState) GetClient(_ context.Context, number ledger.ClientNumber) (ledger.Client, error) {
	c, ok := s.clients[number]
	if !ok {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	return c, nil
}

func (s *memoryState) ListClients(_ context.Context) ([]ledger.Client, error) {
	result := make([]ledger.Client, 0, len(s.clients))
	for _, c := range s.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (s *memoryState) AppendTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.seq++
	tx.Seq = s.seq
	s.transactions[tx.ClientNumber] = append(s.transactions[tx.ClientNumber], tx)
	return tx, nil
}

func (s *memoryState) LoadTransactions(_ context.Context, number ledger.ClientNumber) ([]ledger.Transaction, error) {
	result := make([]ledger.Transaction, len(s.transactions[number]))
	copy(result, s.transactions[number])
	return result, nil
}

func (s *memoryState) SumTransactions(_ context.Context, number ledger.ClientNumber) (ledger.Amount, error) {
	sum := ledger.NewAmount(0)
	for _, tx := range s.transactions[number] {
		sum = sum.Add(tx.Amount)
	}
	return sum, nil
}

func (s *memoryState) GetCreditBalance(_ context.Context, number ledger.ClientNumber) (ledger.Amount, bool, error) {
	a, ok := s.credits[number]
	return a, ok, nil
}

func (s *memoryState) SetCreditBalance(_ context.Context, cb ledger.CreditBalance) error {
	s.credits[cb.ClientNumber] = cb.Amount
	return nil
}

func (s *memoryState) ListCreditBalances(_ context.Context) ([]ledger.CreditBalance, error) {
	result := make([]ledger.CreditBalance, 0, len(s.credits))
	for n, a := range s.credits {
		result = append(result, ledger.CreditBalance{ClientNumber: n, Amount: a})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientNumber < result[j].ClientNumber })
	return result, nil
}

func (s *memoryState) GetBalanceCache(_ context.Context, number ledger.ClientNumber) (ledger.BalanceCache, bool, error) {
	c, ok := s.caches[number]
	return c, ok, nil
}

func (s *memoryState) PutBalanceCache(_ context.Context, cache ledger.BalanceCache) error {
	s.caches[cache.ClientNumber] = cache
	return nil
}
