package party

import (
	"context"
	"sync"

	"registra/internal/identity/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	parties map[domain.PartyID]models.Party
}

func NewInMemory() *InMemory {
	return &InMemory{parties: make(map[domain.PartyID]models.Party)}
}

func (s *InMemory) Create(_ context.Context, p *models.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.parties[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.parties[p.ID] = *p
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.PartyID) (*models.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[id]
	if !ok || p.IsDeleted() {
		return nil, sentinel.ErrNotFound
	}
	out := p
	return &out, nil
}
