package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"registra/internal/access/models"
	"registra/internal/audit"
	identitymodels "registra/internal/identity/models"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// CreateEndpointInput carries the provider-supplied endpoint attributes.
type CreateEndpointInput struct {
	EntityID    domain.EntityID
	Name        string
	URL         string
	Type        models.EndpointType
	AccessModel models.AccessModel
}

// CreateEndpoint registers a draft endpoint under its owning entity. Any
// live entity may draft; publication is where the ACTIVE check bites.
func (s *Service) CreateEndpoint(ctx context.Context, in CreateEndpointInput) (*models.Endpoint, error) {
	if in.EntityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}

	var endpoint *models.Endpoint
	err := s.tx.RunInTx(ctx, in.EntityID.String(), func(txCtx context.Context) error {
		if _, err := s.loadEntity(txCtx, in.EntityID); err != nil {
			return err
		}

		e, err := models.NewEndpoint(
			domain.EndpointID(uuid.New()), in.EntityID,
			in.Name, in.URL, in.Type, in.AccessModel, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.endpoints.Create(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create endpoint")
		}

		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEndpointCreated,
			Severity:     audit.SeverityInfo,
			ResourceType: "endpoint",
			ResourceID:   e.ID.String(),
			Action:       "create",
			Result:       "success",
			Detail: map[string]any{
				"entity_id":    e.EntityID.String(),
				"name":         e.Name,
				"access_model": string(e.AccessModel),
			},
		}); err != nil {
			return err
		}
		endpoint = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

// PublishEndpoint makes the endpoint visible to consumers. The owning
// entity must be ACTIVE. Republishing is idempotent and the original
// published-at timestamp survives: concurrent publishes see first write
// wins, never an overwrite.
func (s *Service) PublishEndpoint(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "endpoint id is required")
	}

	var endpoint *models.Endpoint
	err := s.tx.RunInTx(ctx, id.String(), func(txCtx context.Context) error {
		e, err := s.loadEndpoint(txCtx, id)
		if err != nil {
			return err
		}
		owner, err := s.loadEntity(txCtx, e.EntityID)
		if err != nil {
			return err
		}
		if !owner.IsActive() {
			return dErrors.New(dErrors.CodePrecondition, "owning entity must be active to publish")
		}

		if e.IsPublished() {
			endpoint = e
			return nil
		}

		e.ApplyPublish(requestcontext.Now(txCtx))
		if err := s.endpoints.Update(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to publish endpoint")
		}
		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEndpointPublished,
			Severity:     audit.SeverityInfo,
			ResourceType: "endpoint",
			ResourceID:   e.ID.String(),
			Action:       "publish",
			Result:       "success",
			Detail: map[string]any{
				"entity_id":    e.EntityID.String(),
				"published_at": e.PublishedAt,
			},
		}); err != nil {
			return err
		}
		endpoint = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

// UnpublishEndpoint withdraws the endpoint from consumers. Always legal and
// idempotent; only an actual transition is audited.
func (s *Service) UnpublishEndpoint(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "endpoint id is required")
	}

	var endpoint *models.Endpoint
	err := s.tx.RunInTx(ctx, id.String(), func(txCtx context.Context) error {
		e, err := s.loadEndpoint(txCtx, id)
		if err != nil {
			return err
		}
		if !e.ApplyUnpublish(requestcontext.Now(txCtx)) {
			endpoint = e
			return nil
		}
		if err := s.endpoints.Update(txCtx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to unpublish endpoint")
		}
		if err := s.auditor.Record(txCtx, audit.Event{
			Type:         audit.EventEndpointUnpublished,
			Severity:     audit.SeverityInfo,
			ResourceType: "endpoint",
			ResourceID:   e.ID.String(),
			Action:       "unpublish",
			Result:       "success",
			Detail:       map[string]any{"entity_id": e.EntityID.String()},
		}); err != nil {
			return err
		}
		endpoint = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

// ListEndpointsByEntity returns the provider's live endpoints.
func (s *Service) ListEndpointsByEntity(ctx context.Context, entityID domain.EntityID) ([]models.Endpoint, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	endpoints, err := s.endpoints.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list endpoints")
	}
	return endpoints, nil
}

func (s *Service) loadEndpoint(ctx context.Context, id domain.EndpointID) (*models.Endpoint, error) {
	e, err := s.endpoints.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "endpoint not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load endpoint")
	}
	return e, nil
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
