package grant

import (
	"context"
	"sync"

	"registra/internal/access/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	grants map[domain.GrantID]models.ConsumerGrant
}

func NewInMemory() *InMemory {
	return &InMemory{grants: make(map[domain.GrantID]models.ConsumerGrant)}
}

func (s *InMemory) Create(_ context.Context, g *models.ConsumerGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.grants[g.ID]; exists {
		return sentinel.ErrConflict
	}
	s.grants[g.ID] = *g
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.GrantID) (*models.ConsumerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := g
	return &out, nil
}

func (s *InMemory) Update(_ context.Context, g *models.ConsumerGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.grants[g.ID] = *g
	return nil
}

// ListByConsumer returns all grants held by the consumer, active and
// revoked; history is part of the contract.
func (s *InMemory) ListByConsumer(_ context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConsumerGrant
	for _, g := range s.grants {
		if g.ConsumerID == consumerID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemory) ListActiveByConsumer(_ context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConsumerGrant
	for _, g := range s.grants {
		if g.ConsumerID == consumerID && g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemory) ListActiveByEndpoint(_ context.Context, endpointID domain.EndpointID) ([]models.ConsumerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConsumerGrant
	for _, g := range s.grants {
		if g.EndpointID == endpointID && g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}
