package service

import (
	"context"
	"errors"

	"registra/internal/access/models"
	"registra/internal/audit"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// RevokeGrant deactivates an active grant, stamps the revocation metadata,
// marks the originating request revoked, and revokes the external
// credential. The grant row is never deleted. Revoking an already-revoked
// grant is a precondition failure, not a silent no-op.
func (s *Service) RevokeGrant(ctx context.Context, grantID domain.GrantID, reason string) (*models.ConsumerGrant, error) {
	if grantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "grant id is required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}

	var grant *models.ConsumerGrant
	err := s.tx.RunInTx(ctx, grantID.String(), func(txCtx context.Context) error {
		g, err := s.grants.FindByID(txCtx, grantID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "grant not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load grant")
		}

		if err := s.revokeGrantLocked(txCtx, g, reason); err != nil {
			return err
		}
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incDecision("revoked")
	s.grantDeactivated(1)
	return grant, nil
}

// ListGrantsByConsumer returns the consumer's full grant history, active
// and revoked.
func (s *Service) ListGrantsByConsumer(ctx context.Context, consumerID domain.EntityID) ([]models.ConsumerGrant, error) {
	if consumerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "consumer id is required")
	}
	grants, err := s.grants.ListByConsumer(ctx, consumerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list grants")
	}
	return grants, nil
}

// revokeGrantLocked performs the revocation writes. Callers hold the
// transaction.
func (s *Service) revokeGrantLocked(ctx context.Context, g *models.ConsumerGrant, reason string) error {
	now := requestcontext.Now(ctx)
	if err := g.ApplyRevocation(reason, now); err != nil {
		return err
	}
	if err := s.grants.Update(ctx, g); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update grant")
	}

	r, err := s.requests.FindByID(ctx, g.RequestID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load originating request")
		}
	} else {
		r.ApplyRevoked(now)
		if err := s.requests.Update(ctx, r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update originating request")
		}
	}

	if g.CredentialRef != "" {
		if err := s.issuer.Revoke(ctx, g.CredentialRef); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "credential revocation failed")
		}
		if err := s.auditor.Record(ctx, audit.Event{
			Type:         audit.EventCredentialRevoked,
			Severity:     audit.SeverityInfo,
			ResourceType: "consumer_grant",
			ResourceID:   g.ID.String(),
			Action:       "revoke_credential",
			Result:       "success",
			Detail:       map[string]any{"credential_ref": g.CredentialRef},
		}); err != nil {
			return err
		}
	}

	return s.auditor.Record(ctx, audit.Event{
		Type:         audit.EventGrantRevoked,
		Severity:     audit.SeverityWarning,
		ResourceType: "consumer_grant",
		ResourceID:   g.ID.String(),
		Action:       "revoke",
		Result:       "success",
		Detail: map[string]any{
			"endpoint_id": g.EndpointID.String(),
			"consumer_id": g.ConsumerID.String(),
			"reason":      reason,
		},
	})
}
