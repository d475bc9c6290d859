package service

import (
	"context"
	"errors"

	"registra/internal/audit"
	identitymodels "registra/internal/identity/models"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// AcceptStrongAssurance sets tier 1 on the entity. Proof is delegated: the
// caller already validated the assurance with the external provider, so no
// challenge artifact exists. Replaying the same assurance identifier is a
// state no-op but is still audited.
func (s *Service) AcceptStrongAssurance(ctx context.Context, entityID domain.EntityID, assuranceIdentifier, assuranceLevel string) (*identitymodels.LegalEntity, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	if assuranceIdentifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "assurance identifier is required")
	}

	var entity *identitymodels.LegalEntity
	err := s.tx.RunInTx(ctx, entityID.String(), func(txCtx context.Context) error {
		e, err := s.loadEntity(txCtx, entityID)
		if err != nil {
			return err
		}

		alreadyStrong := e.AuthTier == identitymodels.TierStrong
		if !alreadyStrong {
			e.ApplyStrongAssurance(requestcontext.Now(txCtx))
			if err := s.entities.Update(txCtx, e); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update legal entity")
			}
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventStrongAssuranceAccepted,
			Severity:     audit.SeverityInfo,
			ResourceType: "legal_entity",
			ResourceID:   e.ID.String(),
			Action:       "accept_strong_assurance",
			Result:       "success",
			Detail: map[string]any{
				"assurance_identifier": assuranceIdentifier,
				"assurance_level":      assuranceLevel,
				"replay":               alreadyStrong,
			},
		}); err != nil {
			return err
		}
		entity = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incVerification("strong_assurance", "accepted")
	s.invalidateTrust(ctx, entityID)
	return entity, nil
}

// DowngradeToEmailTier drops the entity to the tier-3 fallback.
func (s *Service) DowngradeToEmailTier(ctx context.Context, entityID domain.EntityID) (*identitymodels.LegalEntity, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	var entity *identitymodels.LegalEntity
	err := s.tx.RunInTx(ctx, entityID.String(), func(txCtx context.Context) error {
		e, err := s.loadEntity(txCtx, entityID)
		if err != nil {
			return err
		}
		e.ApplyEmailTier(requestcontext.Now(txCtx))
		e.ReverifyDueAt = nil
		if err := s.entities.Update(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update legal entity")
		}
		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEmailTierAssigned,
			Severity:     audit.SeverityInfo,
			ResourceType: "legal_entity",
			ResourceID:   e.ID.String(),
			Action:       "downgrade_to_email",
			Result:       "success",
		}); err != nil {
			return err
		}
		entity = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incVerification("email", "assigned")
	s.invalidateTrust(ctx, entityID)
	return entity, nil
}

// DowngradeOverdueEntities sweeps domain-verified entities whose
// re-verification deadline has passed and drops them to the email tier.
// Driven by the same scheduler as the challenge expiry sweep.
func (s *Service) DowngradeOverdueEntities(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := s.entities.ListDueForReverification(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list entities due for reverification")
	}

	downgraded := 0
	for i := range due {
		id := due[i].ID
		if _, err := s.DowngradeToEmailTier(ctx, id); err != nil {
			// Entities tombstoned since the listing are skipped, anything
			// else aborts the sweep.
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				continue
			}
			return downgraded, err
		}
		downgraded++
	}
	return downgraded, nil
}

func (s *Service) loadEntity(ctx context.Context, id domain.EntityID) (*identitymodels.LegalEntity, error) {
	e, err := s.entities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "legal entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
	}
	return e, nil
}
