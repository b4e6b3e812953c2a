package store

import (
	"context"
	"sync"

	"gatepass/internal/movement/models"
	id "gatepass/pkg/domain"
)

// InMemoryStore is an unbounded append-only log per estate.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.EstateID][]models.LogEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.EstateID][]models.LogEntry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EstateID] = append(s.entries[entry.EstateID], entry)
	return nil
}

// Recent returns up to n entries, newest first.
func (s *InMemoryStore) Recent(_ context.Context, estateID id.EstateID, n int) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[estateID]
	n = min(n, len(all))
	out := make([]models.LogEntry, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ForPass returns the pass's entries oldest first.
func (s *InMemoryStore) ForPass(_ context.Context, estateID id.EstateID, passID id.PassID) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LogEntry
	for _, e := range s.entries[estateID] {
		if e.PassID == passID {
			out = append(out, e)
		}
	}
	return out, nil
}
