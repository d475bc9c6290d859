package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades an audit event for downstream routing. Successful
// transitions are INFO, rejected proofs and policy denials WARNING, and
// system-level failures ERROR.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// EventType names every state transition the core can record.
type EventType string

const (
	// Identity ledger events
	EventPartyRegistered    EventType = "party_registered"
	EventEntityRegistered   EventType = "entity_registered"
	EventEntityApproved     EventType = "entity_approved"
	EventEntityRejected     EventType = "entity_rejected"
	EventEntitySuspended    EventType = "entity_suspended"
	EventEntityReinstated   EventType = "entity_reinstated"
	EventEntityDeactivated  EventType = "entity_deactivated"

	// Verification engine events
	EventChallengeRequested      EventType = "domain_challenge_requested"
	EventDomainProofVerified     EventType = "domain_proof_verified"
	EventDomainProofFailed       EventType = "domain_proof_failed"
	EventChallengeExpired        EventType = "domain_challenge_expired"
	EventStrongAssuranceAccepted EventType = "strong_assurance_accepted"
	EventEmailTierAssigned       EventType = "email_tier_assigned"

	// Endpoint access events
	EventEndpointCreated     EventType = "endpoint_created"
	EventEndpointPublished   EventType = "endpoint_published"
	EventEndpointUnpublished EventType = "endpoint_unpublished"
	EventAccessRequested     EventType = "access_requested"
	EventAccessApproved      EventType = "access_approved"
	EventAccessDenied        EventType = "access_denied"
	EventGrantRevoked        EventType = "grant_revoked"

	// Credential lifecycle facts (secrets themselves are never stored)
	EventCredentialIssued  EventType = "credential_issued"
	EventCredentialRevoked EventType = "credential_revoked"

	// Compliance events
	EventPiiAccess       EventType = "pii_access"
	EventRetentionPurged EventType = "retention_purged"
)

// Event is the append-only record of a state transition. Actor is
// pseudonymized by the Recorder before it reaches a store; events are never
// mutated or individually deleted, only bulk-purged by retention policy.
type Event struct {
	ID           uuid.UUID
	Type         EventType
	Severity     Severity
	Actor        string
	ResourceType string
	ResourceID   string
	Action       string
	Result       string
	Detail       map[string]any
	ErrorMessage string
	CreatedAt    time.Time
}
