package models

import (
	"time"

	"registra/pkg/domain"
)

// TrustProfile is the read-model other components consume when they only
// care how much to trust an entity, not its full record. JSON tags are for
// the cache serialization.
type TrustProfile struct {
	EntityID      domain.EntityID `json:"entity_id"`
	Status        EntityStatus    `json:"status"`
	AuthTier      AuthTier        `json:"auth_tier"`
	AuthMethod    AuthMethod      `json:"auth_method"`
	ReverifyDueAt *time.Time      `json:"reverify_due_at,omitempty"`
}

func (e *LegalEntity) TrustProfile() *TrustProfile {
	return &TrustProfile{
		EntityID:      e.ID,
		Status:        e.Status,
		AuthTier:      e.AuthTier,
		AuthMethod:    e.AuthMethod,
		ReverifyDueAt: e.ReverifyDueAt,
	}
}
