// Package store persists visitor passes.
//
// Error contract: ErrNotFound for a missing pass, ErrAlreadyUsed when a pass
// code collides with a live pass of the same estate. Execute returns the
// validate error untouched.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	passes map[id.PassID]*models.VisitorPass
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{passes: make(map[id.PassID]*models.VisitorPass)}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.VisitorPass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.passes {
		if existing.EstateID == p.EstateID && existing.PassCode == p.PassCode && existing.Status.IsLive() {
			return fmt.Errorf("pass code %s: %w", p.PassCode, sentinel.ErrAlreadyUsed)
		}
	}
	s.passes[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, passID id.PassID) (*models.VisitorPass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passes[passID]
	if !ok {
		return nil, fmt.Errorf("pass not found: %w", sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

// Execute holds the store lock across validate and mutate so concurrent
// transitions on one pass serialize; the loser validates against the new state.
func (s *InMemoryStore) Execute(_ context.Context, passID id.PassID, validate func(*models.VisitorPass) error, mutate func(*models.VisitorPass)) (*models.VisitorPass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passes[passID]
	if !ok {
		return nil, fmt.Errorf("pass not found: %w", sentinel.ErrNotFound)
	}
	working := p.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.passes[passID] = working
	return working.Clone(), nil
}

// ListByResident returns the resident's passes newest first, at most limit.
func (s *InMemoryStore) ListByResident(_ context.Context, estateID id.EstateID, residentID id.UserID, limit int) ([]*models.VisitorPass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VisitorPass
	for _, p := range s.passes {
		if p.EstateID == estateID && p.ResidentID == residentID {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.VisitorPass) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID.String(), a.ID.String()))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListLive returns the estate's pending and active passes by departure.
func (s *InMemoryStore) ListLive(_ context.Context, estateID id.EstateID) ([]*models.VisitorPass, error) {
	return s.live(func(p *models.VisitorPass) bool { return p.EstateID == estateID }), nil
}

// ListAllLive returns every live pass across estates.
func (s *InMemoryStore) ListAllLive(_ context.Context) ([]*models.VisitorPass, error) {
	return s.live(func(*models.VisitorPass) bool { return true }), nil
}

func (s *InMemoryStore) live(keep func(*models.VisitorPass) bool) []*models.VisitorPass {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VisitorPass
	for _, p := range s.passes {
		if p.Status.IsLive() && keep(p) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.VisitorPass) int {
		return a.ExpectedDeparture.Compare(b.ExpectedDeparture)
	})
	return out
}
