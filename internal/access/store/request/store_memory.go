package request

import (
	"context"
	"sync"

	"registra/internal/access/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

// InMemory enforces the one-pending-per-(endpoint,consumer) invariant under
// its write lock; two racing RequestAccess calls see exactly one winner.
type InMemory struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]models.AccessRequest
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[domain.RequestID]models.AccessRequest)}
}

func (s *InMemory) Create(_ context.Context, r *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	if r.IsPending() {
		for _, existing := range s.requests {
			if existing.EndpointID == r.EndpointID && existing.ConsumerID == r.ConsumerID && existing.IsPending() {
				return sentinel.ErrConflict
			}
		}
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.RequestID) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := r
	return &out, nil
}

func (s *InMemory) Update(_ context.Context, r *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *InMemory) ListByEndpoint(_ context.Context, endpointID domain.EndpointID) ([]models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccessRequest
	for _, r := range s.requests {
		if r.EndpointID == endpointID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemory) ListPendingByConsumer(_ context.Context, consumerID domain.EntityID) ([]models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccessRequest
	for _, r := range s.requests {
		if r.ConsumerID == consumerID && r.IsPending() {
			out = append(out, r)
		}
	}
	return out, nil
}
