package entity

import (
	"context"
	"sync"
	"time"

	"registra/internal/identity/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

// InMemory keeps entities in a map guarded by a single RWMutex. The
// one-live-per-party check happens under the write lock, which together
// with the per-party transaction runner gives the same exactly-one-winner
// behavior the partial unique index provides in Postgres.
type InMemory struct {
	mu       sync.RWMutex
	entities map[domain.EntityID]models.LegalEntity
}

func NewInMemory() *InMemory {
	return &InMemory{entities: make(map[domain.EntityID]models.LegalEntity)}
}

func (s *InMemory) Create(_ context.Context, e *models.LegalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[e.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.entities {
		if existing.PartyID == e.PartyID && !existing.IsDeleted() {
			return sentinel.ErrConflict
		}
	}
	s.entities[e.ID] = *e
	return nil
}

// FindByID returns the entity regardless of administrative status but never
// a tombstoned one.
func (s *InMemory) FindByID(_ context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok || e.IsDeleted() {
		return nil, sentinel.ErrNotFound
	}
	out := e
	return &out, nil
}

// FindLiveByPartyID returns the party's single non-tombstoned entity.
func (s *InMemory) FindLiveByPartyID(_ context.Context, partyID domain.PartyID) (*models.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.PartyID == partyID && !e.IsDeleted() {
			out := e
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Update(_ context.Context, e *models.LegalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.entities[e.ID] = *e
	return nil
}

// ListDueForReverification returns live, domain-verified entities whose
// re-verification deadline has passed.
func (s *InMemory) ListDueForReverification(_ context.Context, now time.Time) ([]models.LegalEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []models.LegalEntity
	for _, e := range s.entities {
		if e.IsDeleted() || e.ReverifyDueAt == nil || e.AuthMethod != models.MethodDomainVerification {
			continue
		}
		if !e.ReverifyDueAt.After(now) {
			due = append(due, e)
		}
	}
	return due, nil
}
