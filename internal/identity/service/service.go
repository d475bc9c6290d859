package service

import (
	"context"
	"log/slog"
	"time"

	"registra/internal/audit"
	"registra/internal/identity/models"
	"registra/internal/platform/metrics"
	"registra/internal/platform/txn"
	"registra/pkg/domain"
)

type PartyStore interface {
	Create(ctx context.Context, p *models.Party) error
	FindByID(ctx context.Context, id domain.PartyID) (*models.Party, error)
}

type EntityStore interface {
	Create(ctx context.Context, e *models.LegalEntity) error
	FindByID(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error)
	FindLiveByPartyID(ctx context.Context, partyID domain.PartyID) (*models.LegalEntity, error)
	Update(ctx context.Context, e *models.LegalEntity) error
	ListDueForReverification(ctx context.Context, now time.Time) ([]models.LegalEntity, error)
}

type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Cascader tears down what a deactivated entity owns: its active grants are
// revoked and its published endpoints withdrawn, inside the same transaction
// as the tombstone.
type Cascader interface {
	CascadeEntityDeactivation(ctx context.Context, entityID domain.EntityID, reason string) error
}

// TrustCache is a read-through cache for trust profiles. A nil cache is
// valid; lookups then always hit the store.
type TrustCache interface {
	Get(ctx context.Context, entityID domain.EntityID) (*models.TrustProfile, error)
	Set(ctx context.Context, profile *models.TrustProfile) error
	Invalidate(ctx context.Context, entityID domain.EntityID) error
}

// Service orchestrates party and legal-entity lifecycle management.
type Service struct {
	parties  PartyStore
	entities EntityStore
	auditor  Auditor
	tx       txn.Runner
	cascade  Cascader
	cache    TrustCache
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCascader(c Cascader) Option {
	return func(s *Service) { s.cascade = c }
}

func WithTrustCache(c TrustCache) Option {
	return func(s *Service) { s.cache = c }
}

func New(parties PartyStore, entities EntityStore, auditor Auditor, tx txn.Runner, opts ...Option) *Service {
	s := &Service{parties: parties, entities: entities, auditor: auditor, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) invalidateTrust(ctx context.Context, entityID domain.EntityID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, entityID); err != nil {
		s.logger.WarnContext(ctx, "trust cache invalidation failed",
			"entity_id", entityID.String(), "error", err)
	}
}
