package models

import (
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

// PartyClass separates organizations from natural persons at the anchor
// level; most registry flows only ever see organizations.
type PartyClass string

const (
	PartyClassOrganization PartyClass = "organization"
	PartyClassIndividual   PartyClass = "individual"
)

// PartyType refines the class (e.g. company, public_authority, association).
type PartyType string

// Party is the abstract identity anchor. Created once, never hard-deleted,
// and referenced by exactly one live LegalEntity at any time.
type Party struct {
	ID        domain.PartyID
	Class     PartyClass
	Type      PartyType
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Party) IsDeleted() bool { return p.DeletedAt != nil }

func NewParty(id domain.PartyID, class PartyClass, partyType PartyType, now time.Time) (*Party, error) {
	switch class {
	case PartyClassOrganization, PartyClassIndividual:
	default:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown party class")
	}
	if partyType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "party type cannot be empty")
	}
	return &Party{
		ID:        id,
		Class:     class,
		Type:      partyType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
