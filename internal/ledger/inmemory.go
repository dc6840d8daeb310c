package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/petnest/settlement/internal/infra"
)

type inMemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and local development.
func NewInMemory() Ledger {
	return &inMemoryLedger{ids: make(map[string]struct{})}
}

func (l *inMemoryLedger) Append(ctx context.Context, entry Entry) error {
	if !entry.Type.Valid() {
		return fmt.Errorf("unknown entry type %q", entry.Type)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.ids[entry.ID]; exists {
		return fmt.Errorf("entry %s already appended", entry.ID)
	}
	l.entries = append(l.entries, entry)
	l.ids[entry.ID] = struct{}{}

	infra.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i := len(l.entries) - 1; i >= 0; i-- {
			if l.entries[i].ID == entry.ID {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				break
			}
		}
		delete(l.ids, entry.ID)
	})
	return nil
}

func (l *inMemoryLedger) Query(_ context.Context, filter Filter) (Page, error) {
	filter = filter.normalized()

	l.mu.RLock()
	matched := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	// Insertion order breaks ties between equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if filter.Order == OrderNewestFirst {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	page := Page{Total: len(matched)}
	if filter.Offset >= len(matched) {
		page.Entries = []Entry{}
		return page, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Entries = append([]Entry(nil), matched[filter.Offset:end]...)
	return page, nil
}
