package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
)

var (
	// ErrDepositSeen means a deposit transaction hash was already credited
	ErrDepositSeen = errors.New("deposit transaction already credited")

	// ErrInsufficientCredit means a swap asked for more than the user's
	// remaining deposit credit
	ErrInsufficientCredit = errors.New("insufficient deposit credit")
)

// CreditStore tracks native deposits users have pre-paid to the relayer for
// native-to-token swaps. Credits are consumed before the swap executes;
// failed swaps after that point require manual reconciliation, never an
// automatic refund.
type CreditStore interface {
	// Balance returns the remaining credit for a key (zero if none)
	Balance(ctx context.Context, key string) (*big.Int, error)

	// Add credits a verified deposit. Each transaction hash is accepted at
	// most once; a repeat returns ErrDepositSeen.
	Add(ctx context.Context, key string, amount *big.Int, txHash string) error

	// Consume deducts amount from the key's balance, or returns
	// ErrInsufficientCredit leaving the balance unchanged
	Consume(ctx context.Context, key string, amount *big.Int) error
}

// MemoryCreditStore is the in-process CreditStore used when no database is
// configured
type MemoryCreditStore struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	seen     map[string]bool
}

// NewMemoryCreditStore creates an empty in-memory credit store
func NewMemoryCreditStore() *MemoryCreditStore {
	return &MemoryCreditStore{
		balances: make(map[string]*big.Int),
		seen:     make(map[string]bool),
	}
}

func (s *MemoryCreditStore) Balance(_ context.Context, key string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[key]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (s *MemoryCreditStore) Add(_ context.Context, key string, amount *big.Int, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[txHash] {
		return ErrDepositSeen
	}
	s.seen[txHash] = true

	bal, ok := s.balances[key]
	if !ok {
		bal = big.NewInt(0)
		s.balances[key] = bal
	}
	bal.Add(bal, amount)
	return nil
}

func (s *MemoryCreditStore) Consume(_ context.Context, key string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[key]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	bal.Sub(bal, amount)
	return nil
}
