package service

import (
	"context"
	"errors"

	"registra/internal/audit"
	"registra/internal/identity/models"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// ApproveEntity moves a PENDING entity to ACTIVE.
func (s *Service) ApproveEntity(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	return s.transition(ctx, id, models.StatusActive, audit.EventEntityApproved, "approve")
}

// RejectEntity moves a PENDING entity to the terminal REJECTED status.
func (s *Service) RejectEntity(ctx context.Context, id domain.EntityID, reason string) (*models.LegalEntity, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return s.transitionWithDetail(ctx, id, models.StatusRejected, audit.EventEntityRejected, "reject",
		map[string]any{"reason": reason})
}

// SuspendEntity moves an ACTIVE entity to SUSPENDED. Trust tier bookkeeping
// is untouched; suspension is administrative only.
func (s *Service) SuspendEntity(ctx context.Context, id domain.EntityID, reason string) (*models.LegalEntity, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "suspension reason is required")
	}
	return s.transitionWithDetail(ctx, id, models.StatusSuspended, audit.EventEntitySuspended, "suspend",
		map[string]any{"reason": reason})
}

// ReinstateEntity moves a SUSPENDED entity back to ACTIVE.
func (s *Service) ReinstateEntity(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	return s.transition(ctx, id, models.StatusActive, audit.EventEntityReinstated, "reinstate")
}

func (s *Service) transition(ctx context.Context, id domain.EntityID, next models.EntityStatus, eventType audit.EventType, action string) (*models.LegalEntity, error) {
	return s.transitionWithDetail(ctx, id, next, eventType, action, nil)
}

func (s *Service) transitionWithDetail(ctx context.Context, id domain.EntityID, next models.EntityStatus, eventType audit.EventType, action string, detail map[string]any) (*models.LegalEntity, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	var entity *models.LegalEntity
	err := s.tx.RunInTx(ctx, id.String(), func(txCtx context.Context) error {
		e, err := s.loadForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from := e.Status
		if err := e.ApplyStatus(next, requestcontext.Now(txCtx)); err != nil {
			return err
		}
		if err := s.entities.Update(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update legal entity")
		}

		if detail == nil {
			detail = map[string]any{}
		}
		detail["from"] = string(from)
		detail["to"] = string(next)
		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         eventType,
			Severity:     audit.SeverityInfo,
			ResourceType: "legal_entity",
			ResourceID:   e.ID.String(),
			Action:       action,
			Result:       "success",
			Detail:       detail,
		}); err != nil {
			return err
		}
		entity = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTrust(ctx, id)
	return entity, nil
}

// DeactivateEntity tombstones the entity and cascades: active grants held by
// or given to it are revoked and its published endpoints withdrawn, all in
// the same transaction. The party survives and may register a new entity.
func (s *Service) DeactivateEntity(ctx context.Context, id domain.EntityID, reason string) (*models.LegalEntity, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	var entity *models.LegalEntity
	err := s.tx.RunInTx(ctx, id.String(), func(txCtx context.Context) error {
		e, err := s.loadForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := e.CanTransitionTo(models.StatusInactive); err != nil {
			return err
		}

		if s.cascade != nil {
			if err := s.cascade.CascadeEntityDeactivation(txCtx, id, reason); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to cascade entity deactivation")
			}
		}

		from := e.Status
		e.ApplyTombstone(requestcontext.Now(txCtx))
		if err := s.entities.Update(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to tombstone legal entity")
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEntityDeactivated,
			Severity:     audit.SeverityWarning,
			ResourceType: "legal_entity",
			ResourceID:   e.ID.String(),
			Action:       "deactivate",
			Result:       "success",
			Detail: map[string]any{
				"from":   string(from),
				"reason": reason,
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

	s.invalidateTrust(ctx, id)
	return entity, nil
}

func (s *Service) loadForUpdate(ctx context.Context, id domain.EntityID) (*models.LegalEntity, error) {
	e, err := s.entities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "legal entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load legal entity")
	}
	return e, nil
}
