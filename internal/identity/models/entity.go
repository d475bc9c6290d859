package models

import (
	"strings"
	"time"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

// EntityStatus is the administrative lifecycle of a LegalEntity.
//
// Transitions: PENDING → ACTIVE | REJECTED, ACTIVE ↔ SUSPENDED,
// SUSPENDED → INACTIVE. Soft deletion sets INACTIVE alongside the tombstone.
type EntityStatus string

const (
	StatusPending   EntityStatus = "PENDING"
	StatusActive    EntityStatus = "ACTIVE"
	StatusSuspended EntityStatus = "SUSPENDED"
	StatusInactive  EntityStatus = "INACTIVE"
	StatusRejected  EntityStatus = "REJECTED"
)

var statusTransitions = map[EntityStatus][]EntityStatus{
	StatusPending:   {StatusActive, StatusRejected},
	StatusActive:    {StatusSuspended, StatusInactive},
	StatusSuspended: {StatusActive, StatusInactive},
}

// CanTransitionTo reports whether the administrative state machine allows
// moving from s to next. INACTIVE and REJECTED are terminal.
func (s EntityStatus) CanTransitionTo(next EntityStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuthTier is the numeric trust level; 1 is strongest.
type AuthTier int

const (
	TierStrong AuthTier = 1
	TierDomain AuthTier = 2
	TierEmail  AuthTier = 3
)

// AuthMethod names how the current tier was earned.
type AuthMethod string

const (
	MethodStrongAssurance    AuthMethod = "StrongAssurance"
	MethodDomainVerification AuthMethod = "DomainVerification"
	MethodEmailVerification  AuthMethod = "EmailVerification"
)

// MembershipLevel is a commercial attribute carried on the entity; it has no
// bearing on trust decisions.
type MembershipLevel string

const MembershipBasic MembershipLevel = "basic"

// LegalEntity is the verified organizational record.
//
// Invariants:
//   - LegalName is non-empty and at most 256 characters
//   - exactly one non-tombstoned entity exists per Party (store-enforced,
//     uniqueness scoped to the live partition)
//   - tier and method always change together; tier bookkeeping is
//     independent of administrative status
//   - once endpoints or grants reference the entity it is only ever
//     tombstoned, never hard-deleted
type LegalEntity struct {
	ID              domain.EntityID
	PartyID         domain.PartyID
	LegalName       string
	Address         string
	Domain          string
	Status          EntityStatus
	MembershipLevel MembershipLevel
	AuthTier        AuthTier
	AuthMethod      AuthMethod
	DNSVerifiedAt   *time.Time
	ReverifyDueAt   *time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewLegalEntity(id domain.EntityID, partyID domain.PartyID, legalName, address, domainName string, now time.Time) (*LegalEntity, error) {
	legalName = strings.TrimSpace(legalName)
	if legalName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "legal name cannot be empty")
	}
	if len(legalName) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "legal name must be 256 characters or less")
	}
	return &LegalEntity{
		ID:              id,
		PartyID:         partyID,
		LegalName:       legalName,
		Address:         address,
		Domain:          strings.ToLower(strings.TrimSpace(domainName)),
		Status:          StatusPending,
		MembershipLevel: MembershipBasic,
		AuthTier:        TierEmail,
		AuthMethod:      MethodEmailVerification,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (e *LegalEntity) IsDeleted() bool { return e.DeletedAt != nil }

// IsActive reports whether the entity may own published endpoints and
// receive grants: status ACTIVE and not tombstoned.
func (e *LegalEntity) IsActive() bool {
	return e.Status == StatusActive && !e.IsDeleted()
}

// CanTransitionTo validates an administrative status change.
func (e *LegalEntity) CanTransitionTo(next EntityStatus) error {
	if e.IsDeleted() {
		return dErrors.New(dErrors.CodePrecondition, "entity is deactivated")
	}
	if !e.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodePrecondition,
			"cannot transition entity from %s to %s", e.Status, next)
	}
	return nil
}

// ApplyStatus performs a validated administrative transition.
func (e *LegalEntity) ApplyStatus(next EntityStatus, now time.Time) error {
	if err := e.CanTransitionTo(next); err != nil {
		return err
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// ApplyDomainVerification records a successful domain proof: tier 2, the
// verification timestamp, and the re-verification deadline.
func (e *LegalEntity) ApplyDomainVerification(verifiedAt time.Time, reverifyAfter time.Duration) {
	due := verifiedAt.Add(reverifyAfter)
	e.AuthTier = TierDomain
	e.AuthMethod = MethodDomainVerification
	e.DNSVerifiedAt = &verifiedAt
	e.ReverifyDueAt = &due
	e.UpdatedAt = verifiedAt
}

// ApplyStrongAssurance sets tier 1 unconditionally; strong assurance
// supersedes domain and email verification. The re-verification deadline
// applies only to the domain tier, so it is cleared here.
func (e *LegalEntity) ApplyStrongAssurance(now time.Time) {
	e.AuthTier = TierStrong
	e.AuthMethod = MethodStrongAssurance
	e.ReverifyDueAt = nil
	e.UpdatedAt = now
}

// ApplyEmailTier is the fallback (and creation-time default) when no
// stronger proof exists.
func (e *LegalEntity) ApplyEmailTier(now time.Time) {
	e.AuthTier = TierEmail
	e.AuthMethod = MethodEmailVerification
	e.UpdatedAt = now
}

// ApplyTombstone soft-deletes the entity. Status moves to INACTIVE so
// "current" queries and the one-live-per-party uniqueness both stop seeing
// the row.
func (e *LegalEntity) ApplyTombstone(now time.Time) {
	e.Status = StatusInactive
	e.DeletedAt = &now
	e.UpdatedAt = now
}
