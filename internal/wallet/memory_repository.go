package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
	owners  map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage: make(map[string]Wallet),
		owners:  make(map[string]string),
	}
}

func (r *memoryRepository) Create(ctx context.Context, wallet Wallet) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, exists := r.owners[wallet.OwnerID]; exists {
		return r.storage[id], nil
	}
	r.storage[wallet.ID] = wallet
	r.owners[wallet.OwnerID] = wallet.ID

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.storage, wallet.ID)
		delete(r.owners, wallet.OwnerID)
	})
	return wallet, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet: %w", apperrors.ErrNotFound)
	}
	return wallet, nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, ownerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[ownerID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet: %w", apperrors.ErrNotFound)
	}
	return r.storage[id], nil
}

func (r *memoryRepository) Update(ctx context.Context, next Wallet, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.storage[next.ID]
	if !ok || prev.Version != expectedVersion {
		return fmt.Errorf("wallet %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	r.storage[next.ID] = next

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.storage[prev.ID] = prev
	})
	return nil
}
