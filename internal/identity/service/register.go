package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"registra/internal/audit"
	"registra/internal/identity/models"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// RegisterParty creates the identity anchor. Parties carry no verifiable
// attributes themselves; those live on the entity registered next.
func (s *Service) RegisterParty(ctx context.Context, class models.PartyClass, partyType models.PartyType) (*models.Party, error) {
	var party *models.Party
	err := s.tx.RunInTx(ctx, "", func(txCtx context.Context) error {
		p, err := models.NewParty(domain.PartyID(uuid.New()), class, partyType, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.parties.Create(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create party")
		}
		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventPartyRegistered,
			Severity:     audit.SeverityInfo,
			ResourceType: "party",
			ResourceID:   p.ID.String(),
			Action:       "register",
			Result:       "success",
			Detail:       map[string]any{"class": string(p.Class), "party_type": string(p.Type)},
		}); err != nil {
			return err
		}
		party = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return party, nil
}

// RegisterEntityInput carries the caller-supplied entity attributes.
type RegisterEntityInput struct {
	PartyID   domain.PartyID
	LegalName string
	Address   string
	Domain    string
}

// RegisterEntity creates the party's legal entity in PENDING status. The
// store's live-partition uniqueness is the arbiter: of two concurrent
// registrations for the same party exactly one wins.
func (s *Service) RegisterEntity(ctx context.Context, in RegisterEntityInput) (*models.LegalEntity, error) {
	if in.PartyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "party id is required")
	}

	var entity *models.LegalEntity
	err := s.tx.RunInTx(ctx, in.PartyID.String(), func(txCtx context.Context) error {
		if _, err := s.parties.FindByID(txCtx, in.PartyID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "party not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load party")
		}

		e, err := models.NewLegalEntity(
			domain.EntityID(uuid.New()), in.PartyID,
			in.LegalName, in.Address, in.Domain, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}

		if err := s.entities.Create(txCtx, e); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "party already has a live legal entity")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create legal entity")
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEntityRegistered,
			Severity:     audit.SeverityInfo,
			ResourceType: "legal_entity",
			ResourceID:   e.ID.String(),
			Action:       "register",
			Result:       "success",
			Detail: map[string]any{
				"party_id": e.PartyID.String(),
				"status":   string(e.Status),
				"tier":     int(e.AuthTier),
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
	return entity, nil
}

// GetEntity returns a live entity by ID.
func (s *Service) GetEntity(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	e, err := s.entities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "legal entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
	}
	return e, nil
}

// GetEntityForParty returns the party's single live entity.
func (s *Service) GetEntityForParty(ctx context.Context, partyID domain.PartyID) (*models.LegalEntity, error) {
	if partyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "party id is required")
	}
	e, err := s.entities.FindLiveByPartyID(ctx, partyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "party has no live legal entity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
	}
	return e, nil
}

// TrustProfile returns the entity's trust summary, via the cache when one is
// configured. Cache failures degrade to store reads.
func (s *Service) TrustProfile(ctx context.Context, id domain.EntityID) (*models.TrustProfile, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	if s.cache != nil {
		if profile, err := s.cache.Get(ctx, id); err == nil && profile != nil {
			return profile, nil
		}
	}
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := e.TrustProfile()
	if s.cache != nil {
		if err := s.cache.Set(ctx, profile); err != nil {
			s.logger.WarnContext(ctx, "trust cache write failed",
				"entity_id", id.String(), "error", err)
		}
	}
	return profile, nil
}
