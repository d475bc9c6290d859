package challenge

import (
	"context"
	"sync"
	"time"

	"registra/internal/verification/models"
	"registra/pkg/domain"
	"registra/pkg/platform/sentinel"
)

// InMemory enforces the one-pending-per-(entity,domain) invariant under its
// write lock, mirroring what the partial unique index does in Postgres.
type InMemory struct {
	mu         sync.RWMutex
	challenges map[domain.ChallengeID]models.DomainVerificationChallenge
}

func NewInMemory() *InMemory {
	return &InMemory{challenges: make(map[domain.ChallengeID]models.DomainVerificationChallenge)}
}

func (s *InMemory) Create(_ context.Context, c *models.DomainVerificationChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.challenges {
		if existing.EntityID == c.EntityID && existing.Domain == c.Domain && existing.IsPending() {
			return sentinel.ErrConflict
		}
	}
	// Only the token hash is persisted; the plaintext never reaches the store.
	stored := *c
	stored.Token = ""
	s.challenges[c.ID] = stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ChallengeID) (*models.DomainVerificationChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *InMemory) Update(_ context.Context, c *models.DomainVerificationChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *c
	stored.Token = ""
	s.challenges[c.ID] = stored
	return nil
}

// ListExpiredPending returns pending challenges whose deadline has passed,
// for the eager expiry sweep.
func (s *InMemory) ListExpiredPending(_ context.Context, now time.Time) ([]models.DomainVerificationChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []models.DomainVerificationChallenge
	for _, c := range s.challenges {
		if c.IsPending() && c.IsExpired(now) {
			expired = append(expired, c)
		}
	}
	return expired, nil
}
