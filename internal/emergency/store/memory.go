// Package store persists panic events. Missing events surface as
// sentinel.ErrNotFound; Execute returns the validate error untouched.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"gatepass/internal/emergency/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.PanicEventID]*models.PanicEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.PanicEventID]*models.PanicEvent)}
}

func (s *InMemoryStore) Create(_ context.Context, e *models.PanicEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("panic event %s: %w", e.ID, sentinel.ErrAlreadyUsed)
	}
	s.events[e.ID] = e.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, eventID id.PanicEventID) (*models.PanicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("panic event not found: %w", sentinel.ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) Execute(_ context.Context, eventID id.PanicEventID, validate func(*models.PanicEvent) error, mutate func(*models.PanicEvent)) (*models.PanicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("panic event not found: %w", sentinel.ErrNotFound)
	}
	working := e.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.events[eventID] = working
	return working.Clone(), nil
}

// ListActive returns the estate's unresolved events, newest first.
func (s *InMemoryStore) ListActive(_ context.Context, estateID id.EstateID) ([]*models.PanicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PanicEvent
	for _, e := range s.events {
		if e.EstateID == estateID && e.Status == models.StatusActive {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.PanicEvent) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}
