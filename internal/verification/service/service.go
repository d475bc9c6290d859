// Package service implements tier movement for legal entities: DNS
// challenge proofs for tier 2, delegated strong assurance for tier 1, and
// the email fallback for tier 3.
package service

import (
	"context"
	"log/slog"
	"time"

	"registra/internal/audit"
	"registra/internal/collaborator/notify"
	identitymodels "registra/internal/identity/models"
	"registra/internal/platform/metrics"
	"registra/internal/platform/txn"
	"registra/internal/verification/models"
	"registra/pkg/domain"
)

type ChallengeStore interface {
	Create(ctx context.Context, c *models.DomainVerificationChallenge) error
	FindByID(ctx context.Context, id domain.ChallengeID) (*models.DomainVerificationChallenge, error)
	Update(ctx context.Context, c *models.DomainVerificationChallenge) error
	ListExpiredPending(ctx context.Context, now time.Time) ([]models.DomainVerificationChallenge, error)
}

type EntityStore interface {
	FindByID(ctx context.Context, id domain.EntityID) (*identitymodels.LegalEntity, error)
	Update(ctx context.Context, e *identitymodels.LegalEntity) error
	ListDueForReverification(ctx context.Context, now time.Time) ([]identitymodels.LegalEntity, error)
}

type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// TrustInvalidator drops cached trust profiles after tier changes.
type TrustInvalidator interface {
	Invalidate(ctx context.Context, entityID domain.EntityID) error
}

// Config carries the proof-policy knobs.
type Config struct {
	// AttemptCeiling is how many failed proofs a challenge absorbs before
	// it fails terminally.
	AttemptCeiling int
	// ChallengeTTL is how long a pending challenge stays evaluable.
	ChallengeTTL time.Duration
	// ReverifyAfter is the window before a domain-verified entity must
	// prove ownership again.
	ReverifyAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttemptCeiling: 5,
		ChallengeTTL:   72 * time.Hour,
		ReverifyAfter:  90 * 24 * time.Hour,
	}
}

type Service struct {
	challenges ChallengeStore
	entities   EntityStore
	auditor    Auditor
	tx         txn.Runner
	cfg        Config
	notifier   notify.Notifier
	trust      TrustInvalidator
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithTrustInvalidator(t TrustInvalidator) Option {
	return func(s *Service) { s.trust = t }
}

func New(challenges ChallengeStore, entities EntityStore, auditor Auditor, tx txn.Runner, cfg Config, opts ...Option) *Service {
	if cfg.AttemptCeiling <= 0 {
		cfg.AttemptCeiling = DefaultConfig().AttemptCeiling
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultConfig().ChallengeTTL
	}
	if cfg.ReverifyAfter <= 0 {
		cfg.ReverifyAfter = DefaultConfig().ReverifyAfter
	}
	s := &Service{challenges: challenges, entities: entities, auditor: auditor, tx: tx, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) incVerification(method, outcome string) {
	if s.metrics != nil {
		s.metrics.IncVerification(method, outcome)
	}
}

func (s *Service) invalidateTrust(ctx context.Context, entityID domain.EntityID) {
	if s.trust == nil {
		return
	}
	if err := s.trust.Invalidate(ctx, entityID); err != nil {
		s.logger.WarnContext(ctx, "trust cache invalidation failed",
			"entity_id", entityID.String(), "error", err)
	}
}
