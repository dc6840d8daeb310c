package withdrawal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/petnest/settlement/internal/apperrors"
	"github.com/petnest/settlement/internal/infra"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Withdrawal
}

// NewMemoryRepository constructs an in-memory repository for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Withdrawal)}
}

func (r *memoryRepository) Create(ctx context.Context, w Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[w.ID]; exists {
		return fmt.Errorf("withdrawal %s already exists", w.ID)
	}
	r.storage[w.ID] = w

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.storage, w.ID)
	})
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Withdrawal{}, fmt.Errorf("withdrawal: %w", apperrors.ErrNotFound)
	}
	return w, nil
}

func (r *memoryRepository) Update(ctx context.Context, next Withdrawal, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.storage[next.ID]
	if !ok || prev.Version != expectedVersion {
		return fmt.Errorf("withdrawal %s version %d: %w", next.ID, expectedVersion, apperrors.ErrConcurrencyConflict)
	}
	r.storage[next.ID] = next

	infra.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.storage[prev.ID] = prev
	})
	return nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Withdrawal, int, error) {
	filter = filter.normalized()

	r.mu.RLock()
	var matched []Withdrawal
	for _, w := range r.storage {
		if filter.matches(w) {
			matched = append(matched, w)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Code > matched[j].Code
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}
