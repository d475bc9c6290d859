package models

import (
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
	platformstrings "registra/pkg/platform/strings"
)

// RequestStatus is the access-request lifecycle. Only pending is live; a
// consumer may always file a new request after denial or revocation, the
// uniqueness invariant forbids only a second pending one.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
	RequestRevoked  RequestStatus = "revoked"
)

// AccessRequest is a consumer's bid to use a provider endpoint.
type AccessRequest struct {
	ID              domain.RequestID
	EndpointID      domain.EndpointID
	ConsumerID      domain.EntityID
	RequestedScopes []string
	ApprovedScopes  []string
	Status          RequestStatus
	DecidedBy       string
	DecidedAt       *time.Time
	DenialReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewAccessRequest(id domain.RequestID, endpointID domain.EndpointID, consumerID domain.EntityID, requestedScopes []string, now time.Time) (*AccessRequest, error) {
	scopes := normalizeScopes(requestedScopes)
	if len(scopes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one scope must be requested")
	}
	return &AccessRequest{
		ID:              id,
		EndpointID:      endpointID,
		ConsumerID:      consumerID,
		RequestedScopes: scopes,
		Status:          RequestPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (r *AccessRequest) IsPending() bool { return r.Status == RequestPending }

// CanDecide rejects decisions on anything but a pending request.
func (r *AccessRequest) CanDecide() error {
	if !r.IsPending() {
		return dErrors.Newf(dErrors.CodePrecondition, "request is already %s", r.Status)
	}
	return nil
}

// ApplyApproval settles the request. Approved scopes must be a subset of
// the requested ones; an empty subset is legal and leads to a grant that
// authorizes nothing.
func (r *AccessRequest) ApplyApproval(approvedScopes []string, decidedBy string, now time.Time) error {
	if err := r.CanDecide(); err != nil {
		return err
	}
	scopes := normalizeScopes(approvedScopes)
	if !subset(scopes, r.RequestedScopes) {
		return dErrors.New(dErrors.CodeValidation, "approved scopes must be a subset of requested scopes")
	}
	if scopes == nil {
		scopes = []string{}
	}
	r.Status = RequestApproved
	r.ApprovedScopes = scopes
	r.DecidedBy = decidedBy
	r.DecidedAt = &now
	r.UpdatedAt = now
	return nil
}

func (r *AccessRequest) ApplyDenial(reason, decidedBy string, now time.Time) error {
	if err := r.CanDecide(); err != nil {
		return err
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "denial reason is required")
	}
	r.Status = RequestDenied
	r.DenialReason = reason
	r.DecidedBy = decidedBy
	r.DecidedAt = &now
	r.UpdatedAt = now
	return nil
}

// ApplyRevoked marks the request revoked after its grant has been revoked.
func (r *AccessRequest) ApplyRevoked(now time.Time) {
	r.Status = RequestRevoked
	r.UpdatedAt = now
}

func normalizeScopes(scopes []string) []string {
	return platformstrings.DedupeAndTrim(scopes)
}

func subset(candidate, of []string) bool {
	allowed := make(map[string]struct{}, len(of))
	for _, s := range of {
		allowed[s] = struct{}{}
	}
	for _, s := range candidate {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}
