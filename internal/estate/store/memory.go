// Package store persists estates and their members.
//
// Error contract: ErrNotFound when the row is missing, ErrAlreadyUsed when a
// uniqueness rule is violated, wrapped errors for infrastructure failures.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gatepass/internal/estate/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

type InMemoryEstateStore struct {
	mu      sync.RWMutex
	estates map[id.EstateID]*models.Estate
}

func NewInMemoryEstateStore() *InMemoryEstateStore {
	return &InMemoryEstateStore{estates: make(map[id.EstateID]*models.Estate)}
}

func (s *InMemoryEstateStore) Create(_ context.Context, estate *models.Estate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.estates {
		if strings.EqualFold(existing.Name, estate.Name) {
			return fmt.Errorf("estate name %q: %w", estate.Name, sentinel.ErrAlreadyUsed)
		}
	}
	c := *estate
	s.estates[estate.ID] = &c
	return nil
}

func (s *InMemoryEstateStore) FindByID(_ context.Context, estateID id.EstateID) (*models.Estate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.estates[estateID]
	if !ok {
		return nil, fmt.Errorf("estate not found: %w", sentinel.ErrNotFound)
	}
	c := *e
	return &c, nil
}

// Execute runs validate then mutate under the store lock. The stored estate is
// untouched when validate fails.
func (s *InMemoryEstateStore) Execute(_ context.Context, estateID id.EstateID, validate func(*models.Estate) error, mutate func(*models.Estate)) (*models.Estate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.estates[estateID]
	if !ok {
		return nil, fmt.Errorf("estate not found: %w", sentinel.ErrNotFound)
	}
	c := *e
	if err := validate(&c); err != nil {
		return nil, err
	}
	mutate(&c)
	s.estates[estateID] = &c
	out := c
	return &out, nil
}

type memberKey struct {
	estate id.EstateID
	user   id.UserID
}

type InMemoryMemberStore struct {
	mu      sync.RWMutex
	members map[memberKey]*models.Member
	order   []memberKey
}

func NewInMemoryMemberStore() *InMemoryMemberStore {
	return &InMemoryMemberStore{members: make(map[memberKey]*models.Member)}
}

func (s *InMemoryMemberStore) Add(_ context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{member.EstateID, member.UserID}
	if _, ok := s.members[key]; ok {
		return fmt.Errorf("member %s: %w", member.UserID, sentinel.ErrAlreadyUsed)
	}
	c := *member
	s.members[key] = &c
	s.order = append(s.order, key)
	return nil
}

func (s *InMemoryMemberStore) Find(_ context.Context, estateID id.EstateID, userID id.UserID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{estateID, userID}]
	if !ok {
		return nil, fmt.Errorf("member not found: %w", sentinel.ErrNotFound)
	}
	c := *m
	return &c, nil
}

// ListByEstate returns members in join order. An empty role matches every role.
func (s *InMemoryMemberStore) ListByEstate(_ context.Context, estateID id.EstateID, role models.Role) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Member, 0)
	for _, key := range s.order {
		if key.estate != estateID {
			continue
		}
		m := s.members[key]
		if role != "" && m.Role != role {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return slices.Clip(out), nil
}
