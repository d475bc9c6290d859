package endpoint

import (
	"context"
	"sync"

	"registra/internal/access/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	endpoints map[domain.EndpointID]models.Endpoint
}

func NewInMemory() *InMemory {
	return &InMemory{endpoints: make(map[domain.EndpointID]models.Endpoint)}
}

func (s *InMemory) Create(_ context.Context, e *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[e.ID]; exists {
		return sentinel.ErrConflict
	}
	s.endpoints[e.ID] = *e
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.EndpointID) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.endpoints[id]
	if !ok || e.IsDeleted() {
		return nil, sentinel.ErrNotFound
	}
	out := e
	return &out, nil
}

func (s *InMemory) ListByEntity(_ context.Context, entityID domain.EntityID) ([]models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Endpoint
	for _, e := range s.endpoints {
		if e.EntityID == entityID && !e.IsDeleted() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, e *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.endpoints[e.ID] = *e
	return nil
}
