package session

import (
	"context"
	"sync"
	"time"
)

// entry is a stored value with its write time, kept for marker cleanup.
type entry struct {
	value     string
	createdAt time.Time
}

// InMemoryManager implements Manager with in-process storage. Suitable for
// tests and single-instance deployments.
type InMemoryManager struct {
	mu       sync.RWMutex
	sessions map[string]map[string]entry
	now      func() time.Time
}

// NewInMemoryManager creates a new in-memory session manager.
func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		sessions: make(map[string]map[string]entry),
		now:      time.Now,
	}
}

// Session returns the store scoped to the given session ID.
func (m *InMemoryManager) Session(id string) Store {
	return &memoryStore{manager: m, id: id}
}

// DeleteProcessedOlderThan removes durable processed markers written before
// the retention window, across all sessions. Returns the number removed.
// Intent keys are left alone; they are cleared by the dismiss flow.
func (m *InMemoryManager) DeleteProcessedOlderThan(retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)
	deleted := int64(0)

	for sid, keys := range m.sessions {
		for key, e := range keys {
			if IsProcessedKey(key) && e.createdAt.Before(cutoff) {
				delete(keys, key)
				deleted++
			}
		}
		if len(keys) == 0 {
			delete(m.sessions, sid)
		}
	}

	return deleted, nil
}

type memoryStore struct {
	manager *InMemoryManager
	id      string
}

func (s *memoryStore) ID() string {
	return s.id
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	s.manager.mu.RLock()
	defer s.manager.mu.RUnlock()

	keys, ok := s.manager.sessions[s.id]
	if !ok {
		return "", ErrKeyNotFound
	}
	e, ok := keys[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return e.value, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()

	keys, ok := s.manager.sessions[s.id]
	if !ok {
		keys = make(map[string]entry)
		s.manager.sessions[s.id] = keys
	}
	keys[key] = entry{value: value, createdAt: s.manager.now()}
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()

	if keys, ok := s.manager.sessions[s.id]; ok {
		delete(keys, key)
	}
	return nil
}
