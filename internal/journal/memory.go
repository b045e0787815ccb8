package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with in-process storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryRepository creates a new in-memory journal.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Insert records an entry, assigning ID and CreatedAt when unset.
func (r *InMemoryRepository) Insert(ctx context.Context, entry *Entry) error {
	if entry.Stage == "" {
		return ErrEmptyStage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	r.entries = append(r.entries, *entry)
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (r *InMemoryRepository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}
