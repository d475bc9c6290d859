package models

import (
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

// ConsumerGrant is the live authorization artifact created when a request
// is approved. Grants are deactivated on revocation, never deleted, so the
// history stays queryable.
type ConsumerGrant struct {
	ID            domain.GrantID
	RequestID     domain.RequestID
	EndpointID    domain.EndpointID
	ConsumerID    domain.EntityID
	Scopes        []string
	CredentialRef string
	Active        bool
	RevokedAt     *time.Time
	RevokedReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewConsumerGrant(id domain.GrantID, request *AccessRequest, credentialRef string, now time.Time) (*ConsumerGrant, error) {
	if request.Status != RequestApproved {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grant requires an approved request")
	}
	return &ConsumerGrant{
		ID:            id,
		RequestID:     request.ID,
		EndpointID:    request.EndpointID,
		ConsumerID:    request.ConsumerID,
		Scopes:        request.ApprovedScopes,
		CredentialRef: credentialRef,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanRevoke rejects revocation of an already-revoked grant.
func (g *ConsumerGrant) CanRevoke() error {
	if !g.Active {
		return dErrors.New(dErrors.CodePrecondition, "grant is already revoked")
	}
	return nil
}

func (g *ConsumerGrant) ApplyRevocation(reason string, now time.Time) error {
	if err := g.CanRevoke(); err != nil {
		return err
	}
	g.Active = false
	g.RevokedAt = &now
	g.RevokedReason = reason
	g.UpdatedAt = now
	return nil
}
