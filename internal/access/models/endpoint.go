package models

import (
	"net/url"
	"strings"
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

// PublicationStatus is the endpoint publication sub-machine. There is no
// way back from published to draft; withdrawing always lands in
// unpublished, and a re-publish is a deliberate new Publish call.
type PublicationStatus string

const (
	PublicationDraft       PublicationStatus = "draft"
	PublicationPublished   PublicationStatus = "published"
	PublicationUnpublished PublicationStatus = "unpublished"
)

// AccessModel controls how consumers obtain access: open endpoints
// auto-approve requests, restricted ones require a provider decision, and
// private ones accept no requests at all.
type AccessModel string

const (
	AccessModelOpen       AccessModel = "open"
	AccessModelRestricted AccessModel = "restricted"
	AccessModelPrivate    AccessModel = "private"
)

// EndpointType classifies the published surface (rest, soap, event feed).
type EndpointType string

// Endpoint is a provider's published API surface, owned by one LegalEntity.
type Endpoint struct {
	ID                domain.EndpointID
	EntityID          domain.EntityID
	Name              string
	URL               string
	Type              EndpointType
	PublicationStatus PublicationStatus
	AccessModel       AccessModel
	PublishedAt       *time.Time
	Active            bool
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewEndpoint(id domain.EndpointID, entityID domain.EntityID, name, rawURL string, endpointType EndpointType, accessModel AccessModel, now time.Time) (*Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "endpoint name cannot be empty")
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "endpoint URL must be absolute")
	}
	switch accessModel {
	case AccessModelOpen, AccessModelRestricted, AccessModelPrivate:
	default:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown access model")
	}
	return &Endpoint{
		ID:                id,
		EntityID:          entityID,
		Name:              name,
		URL:               u.String(),
		Type:              endpointType,
		PublicationStatus: PublicationDraft,
		AccessModel:       accessModel,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (e *Endpoint) IsDeleted() bool   { return e.DeletedAt != nil }
func (e *Endpoint) IsPublished() bool { return e.PublicationStatus == PublicationPublished && !e.IsDeleted() }

// ApplyPublish sets published status. PublishedAt is written exactly once;
// republishing after an unpublish keeps the original timestamp.
func (e *Endpoint) ApplyPublish(now time.Time) {
	e.PublicationStatus = PublicationPublished
	if e.PublishedAt == nil {
		e.PublishedAt = &now
	}
	e.UpdatedAt = now
}

// ApplyUnpublish withdraws the endpoint. Always legal; calling it on an
// already-unpublished endpoint changes nothing.
func (e *Endpoint) ApplyUnpublish(now time.Time) bool {
	if e.PublicationStatus == PublicationUnpublished {
		return false
	}
	e.PublicationStatus = PublicationUnpublished
	e.UpdatedAt = now
	return true
}

// ApplyTombstone soft-deletes the endpoint, used when the owning entity is
// deactivated.
func (e *Endpoint) ApplyTombstone(now time.Time) {
	e.PublicationStatus = PublicationUnpublished
	e.Active = false
	e.DeletedAt = &now
	e.UpdatedAt = now
}
