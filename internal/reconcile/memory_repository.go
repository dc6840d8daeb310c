package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/gateway"
	"github.com/petnest/settlement/internal/infra"
)

type codeKey struct {
	provider gateway.Provider
	code     string
}

type memoryRepository struct {
	mu       sync.RWMutex
	payments map[string]Payment
	codes    map[codeKey]string
	receipts map[codeKey]Receipt
}

// NewMemoryRepository constructs an in-memory repository for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		payments: make(map[string]Payment),
		codes:    make(map[codeKey]string),
		receipts: make(map[codeKey]Receipt),
	}
}

func (r *memoryRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := codeKey{p.Provider, p.TransactionCode}
	if id, exists := r.codes[key]; exists {
		return r.payments[id], nil
	}
	r.payments[p.ID] = p
	r.codes[key] = p.ID

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.payments, p.ID)
		delete(r.codes, key)
	})
	return p, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment: %w", apperrors.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepository) GetByCode(_ context.Context, provider gateway.Provider, code string) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.codes[codeKey{provider, code}]
	if !ok {
		return Payment{}, fmt.Errorf("payment: %w", apperrors.ErrNotFound)
	}
	return r.payments[id], nil
}

func (r *memoryRepository) Update(ctx context.Context, next Payment, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.payments[next.ID]
	if !ok || prev.Version != expectedVersion {
		return fmt.Errorf("payment %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	r.payments[next.ID] = next

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.payments[prev.ID] = prev
	})
	return nil
}

func (r *memoryRepository) ClaimCallback(ctx context.Context, rc Receipt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := codeKey{rc.Provider, rc.TransactionCode}
	if _, exists := r.receipts[key]; exists {
		return false, nil
	}
	r.receipts[key] = rc

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.receipts, key)
	})
	return true, nil
}
