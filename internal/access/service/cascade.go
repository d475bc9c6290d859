package service

import (
	"context"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/requestcontext"
)

// CascadeEntityDeactivation tears down everything the entity holds in this
// component: grants it consumes are revoked, its pending requests are
// closed, its endpoints lose their active grants and open requests, and the
// endpoints themselves are tombstoned. The identity service calls this
// inside the deactivation transaction, so either the whole teardown commits
// with the tombstone or none of it does.
func (s *Service) CascadeEntityDeactivation(ctx context.Context, entityID domain.EntityID, reason string) error {
	now := requestcontext.Now(ctx)

	consumed, err := s.grants.ListActiveByConsumer(ctx, entityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to list consumed grants")
	}
	revoked := 0
	for i := range consumed {
		g := consumed[i]
		if err := s.revokeGrantLocked(ctx, &g, reason); err != nil {
			return err
		}
		revoked++
	}

	pending, err := s.requests.ListPendingByConsumer(ctx, entityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to list pending requests")
	}
	for i := range pending {
		r := pending[i]
		r.ApplyRevoked(now)
		if err := s.requests.Update(ctx, &r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to close pending request")
		}
	}

	endpoints, err := s.endpoints.ListByEntity(ctx, entityID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to list endpoints")
	}
	for i := range endpoints {
		e := endpoints[i]
		provided, err := s.grants.ListActiveByEndpoint(ctx, e.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to list endpoint grants")
		}
		for j := range provided {
			g := provided[j]
			if err := s.revokeGrantLocked(ctx, &g, reason); err != nil {
				return err
			}
			revoked++
		}

		open, err := s.requests.ListByEndpoint(ctx, e.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to list endpoint requests")
		}
		for j := range open {
			r := open[j]
			if !r.IsPending() {
				continue
			}
			r.ApplyRevoked(now)
			if err := s.requests.Update(ctx, &r); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to close pending request")
			}
		}

		e.ApplyTombstone(now)
		if err := s.endpoints.Update(ctx, &e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to tombstone endpoint")
		}
	}

	s.grantDeactivated(revoked)
	return nil
}
