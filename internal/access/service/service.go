// Package service implements the endpoint publication lifecycle and the
// request-grant-revoke protocol between provider and consumer entities.
package service

import (
	"context"
	"log/slog"

	"registra/internal/access/models"
	"registra/internal/audit"
	"registra/internal/collaborator/credentials"
	"registra/internal/collaborator/notify"
	identitymodels "registra/internal/identity/models"
	"registra/internal/platform/metrics"
	"registra/internal/platform/txn"
	"registra/pkg/domain"
)

type EndpointStore interface {
	Create(ctx context.Context, e *models.Endpoint) error
	FindByID(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error)
	ListByEntity(ctx context.Context, entityID domain.EntityID) ([]models.Endpoint, error)
	Update(ctx context.Context, e *models.Endpoint) error
}

type RequestStore interface {
	Create(ctx context.Context, r *models.AccessRequest) error
	FindByID(ctx context.Context, id domain.RequestID) (*models.AccessRequest, error)
	Update(ctx context.Context, r *models.AccessRequest) error
	ListByEndpoint(ctx context.Context, endpointID domain.EndpointID) ([]models.AccessRequest, error)
	ListPendingByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.AccessRequest, error)
}

type GrantStore interface {
	Create(ctx context.Context, g *models.ConsumerGrant) error
	FindByID(ctx context.Context, id domain.GrantID) (*models.ConsumerGrant, error)
	Update(ctx context.Context, g *models.ConsumerGrant) error
	ListByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error)
	ListActiveByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error)
	ListActiveByEndpoint(ctx context.Context, endpointID domain.EndpointID) ([]models.ConsumerGrant, error)
}

// EntityReader is the slice of the identity ledger this component needs:
// resolving owners and consumers to check their status and tier.
type EntityReader interface {
	FindByID(ctx context.Context, id domain.EntityID) (*identitymodels.LegalEntity, error)
}

type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

type Service struct {
	endpoints EndpointStore
	requests  RequestStore
	grants    GrantStore
	entities  EntityReader
	auditor   Auditor
	tx        txn.Runner
	issuer    credentials.Issuer
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

func New(endpoints EndpointStore, requests RequestStore, grants GrantStore, entities EntityReader, auditor Auditor, tx txn.Runner, issuer credentials.Issuer, opts ...Option) *Service {
	s := &Service{
		endpoints: endpoints,
		requests:  requests,
		grants:    grants,
		entities:  entities,
		auditor:   auditor,
		tx:        tx,
		issuer:    issuer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.issuer == nil {
		s.issuer = credentials.NewLocalIssuer()
	}
	return s
}

func (s *Service) incDecision(decision string) {
	if s.metrics != nil {
		s.metrics.IncAccessDecision(decision)
	}
}

func (s *Service) grantActivated() {
	if s.metrics != nil {
		s.metrics.ActiveGrants.Inc()
	}
}

func (s *Service) grantDeactivated(n int) {
	if s.metrics != nil {
		s.metrics.ActiveGrants.Sub(float64(n))
	}
}

func (s *Service) notifyDecision(ctx context.Context, r *models.AccessRequest, outcome, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.AccessDecided(ctx, notify.DecisionNotification{
		RequestID:  r.ID,
		EndpointID: r.EndpointID,
		ConsumerID: r.ConsumerID,
		Outcome:    outcome,
		Reason:     reason,
	})
}
