package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"registra/internal/access/models"
	"registra/internal/audit"
	"registra/internal/collaborator/credentials"
	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/platform/sentinel"
	"registra/pkg/requestcontext"
)

// RequestAccess files a consumer's bid for a published endpoint. On a
// restricted endpoint the request waits for the provider's decision; on an
// open endpoint it is approved synchronously with the grant created in the
// same transaction. Private endpoints accept no requests.
//
// The one-pending-per-(endpoint,consumer) invariant is store-enforced;
// re-requesting after a denial or revocation is always allowed.
func (s *Service) RequestAccess(ctx context.Context, endpointID domain.EndpointID, consumerID domain.EntityID, requestedScopes []string) (*models.AccessRequest, *models.ConsumerGrant, error) {
	if endpointID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "endpoint id is required")
	}
	if consumerID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "consumer id is required")
	}

	var (
		request *models.AccessRequest
		grant   *models.ConsumerGrant
	)
	err := s.tx.RunInTx(ctx, endpointID.String(), func(txCtx context.Context) error {
		endpoint, err := s.loadEndpoint(txCtx, endpointID)
		if err != nil {
			return err
		}
		if !endpoint.IsPublished() {
			return dErrors.New(dErrors.CodePrecondition, "endpoint is not published")
		}
		if endpoint.AccessModel == models.AccessModelPrivate {
			return dErrors.New(dErrors.CodePrecondition, "endpoint does not accept access requests")
		}
		consumer, err := s.loadEntity(txCtx, consumerID)
		if err != nil {
			return err
		}
		if !consumer.IsActive() {
			return dErrors.New(dErrors.CodePrecondition, "consumer entity must be active")
		}

		now := requestcontext.Now(txCtx)
		r, err := models.NewAccessRequest(domain.RequestID(uuid.New()), endpointID, consumerID, requestedScopes, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}

		if endpoint.AccessModel == models.AccessModelOpen {
			// Auto-approval grants the full requested set: the request never
			// becomes visible as pending, but both steps are recorded as if
			// they had happened apart.
			if err := r.ApplyApproval(r.RequestedScopes, "auto", now); err != nil {
				return err
			}
			if err := s.requests.Create(txCtx, r); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.New(dErrors.CodeConflict, "a pending request already exists for this endpoint")
				}
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create access request")
			}
			g, err := s.issueGrant(txCtx, r)
			if err != nil {
				return err
			}
			if err := s.recordRequested(txCtx, r); err != nil {
				return err
			}
			if err := s.recordApproved(txCtx, r, g, true); err != nil {
				return err
			}
			request, grant = r, g
			return nil
		}

		if err := s.requests.Create(txCtx, r); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a pending request already exists for this endpoint")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create access request")
		}
		if err := s.recordRequested(txCtx, r); err != nil {
			return err
		}
		request = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if grant != nil {
		s.incDecision("auto_approved")
		s.grantActivated()
		s.notifyDecision(ctx, request, "approved", "")
	}
	return request, grant, nil
}

// Decision is the provider's verdict on a pending request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// DecideAccess settles a pending request. Approval creates exactly one
// active grant carrying the approved scopes (a subset of the requested
// ones) and triggers external credential issuance; denial requires a
// reason. Both paths audit inside the transaction.
func (s *Service) DecideAccess(ctx context.Context, requestID domain.RequestID, decision Decision, approvedScopes []string, denialReason string) (*models.AccessRequest, *models.ConsumerGrant, error) {
	if requestID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "request id is required")
	}
	if decision != DecisionApproved && decision != DecisionDenied {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "decision must be approved or denied")
	}

	var (
		request *models.AccessRequest
		grant   *models.ConsumerGrant
	)
	err := s.tx.RunInTx(ctx, requestID.String(), func(txCtx context.Context) error {
		r, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "access request not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to load access request")
		}

		now := requestcontext.Now(txCtx)
		decidedBy := requestcontext.Actor(txCtx)

		if decision == DecisionDenied {
			if err := r.ApplyDenial(denialReason, decidedBy, now); err != nil {
				return err
			}
			if err := s.requests.Update(txCtx, r); err != nil {
				return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update access request")
			}
			if err := s.auditor.Record(txCtx, audit.Event{
				Type:         audit.EventAccessDenied,
				Severity:     audit.SeverityInfo,
				ResourceType: "access_request",
				ResourceID:   r.ID.String(),
				Action:       "deny",
				Result:       "success",
				Detail: map[string]any{
					"endpoint_id": r.EndpointID.String(),
					"consumer_id": r.ConsumerID.String(),
					"reason":      denialReason,
				},
			}); err != nil {
				return err
			}
			request = r
			return nil
		}

		if err := r.ApplyApproval(approvedScopes, decidedBy, now); err != nil {
			return err
		}
		if err := s.requests.Update(txCtx, r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to update access request")
		}
		g, err := s.issueGrant(txCtx, r)
		if err != nil {
			return err
		}
		if err := s.recordApproved(txCtx, r, g, false); err != nil {
			return err
		}
		request, grant = r, g
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if grant != nil {
		s.incDecision("approved")
		s.grantActivated()
		s.notifyDecision(ctx, request, "approved", "")
	} else {
		s.incDecision("denied")
		s.notifyDecision(ctx, request, "denied", denialReason)
	}
	return request, grant, nil
}

// issueGrant provisions the external credential and persists the grant
// carrying its opaque reference. Issuance failure aborts the approval.
func (s *Service) issueGrant(ctx context.Context, r *models.AccessRequest) (*models.ConsumerGrant, error) {
	grantID := domain.GrantID(uuid.New())
	ref, err := s.issuer.Issue(ctx, credentials.IssueRequest{
		GrantID:    grantID,
		ConsumerID: r.ConsumerID,
		EndpointID: r.EndpointID,
		Scopes:     r.ApprovedScopes,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential issuance failed")
	}

	g, err := models.NewConsumerGrant(grantID, r, ref, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create grant")
	}
	if err := s.auditor.Record(ctx, audit.Event{
		Type:         audit.EventCredentialIssued,
		Severity:     audit.SeverityInfo,
		ResourceType: "consumer_grant",
		ResourceID:   g.ID.String(),
		Action:       "issue_credential",
		Result:       "success",
		Detail: map[string]any{
			"consumer_id":    g.ConsumerID.String(),
			"credential_ref": g.CredentialRef,
		},
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) recordRequested(ctx context.Context, r *models.AccessRequest) error {
	return s.auditor.Record(ctx, audit.Event{
		Type:         audit.EventAccessRequested,
		Severity:     audit.SeverityInfo,
		ResourceType: "access_request",
		ResourceID:   r.ID.String(),
		Action:       "request",
		Result:       "success",
		Detail: map[string]any{
			"endpoint_id":      r.EndpointID.String(),
			"consumer_id":      r.ConsumerID.String(),
			"requested_scopes": r.RequestedScopes,
		},
	})
}

func (s *Service) recordApproved(ctx context.Context, r *models.AccessRequest, g *models.ConsumerGrant, auto bool) error {
	return s.auditor.Record(ctx, audit.Event{
		Type:         audit.EventAccessApproved,
		Severity:     audit.SeverityInfo,
		ResourceType: "access_request",
		ResourceID:   r.ID.String(),
		Action:       "approve",
		Result:       "success",
		Detail: map[string]any{
			"endpoint_id":     r.EndpointID.String(),
			"consumer_id":     r.ConsumerID.String(),
			"approved_scopes": r.ApprovedScopes,
			"grant_id":        g.ID.String(),
			"auto":            auto,
		},
	})
}
