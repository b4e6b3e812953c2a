package store

import (
	"context"
	"fmt"
	"sync"

	"gatepass/internal/blacklist/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// InMemoryStore keeps each estate's entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.EstateID][]*models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.EstateID][]*models.Entry)}
}

func (s *InMemoryStore) Add(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.entries[entry.EstateID] = append(s.entries[entry.EstateID], &c)
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[estateID]
	for i, e := range entries {
		if e.ID == entryID {
			s.entries[estateID] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("blacklist entry not found: %w", sentinel.ErrNotFound)
}

// List returns a copy of the estate's entries. Later writes do not affect it.
func (s *InMemoryStore) List(_ context.Context, estateID id.EstateID) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Entry, 0, len(s.entries[estateID]))
	for _, e := range s.entries[estateID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
