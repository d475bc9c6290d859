package audit

import (
	"context"
	"time"
)

// Store persists audit events. Append must participate in any transaction
// carried by ctx so the event commits or aborts with the primary write.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MappingStore keeps the reversible pseudonym → raw-value mapping, stored
// apart from the events so bulk reads never expose PII.
type MappingStore interface {
	Save(ctx context.Context, digest, rawValue string) error
	Find(ctx context.Context, digest string) (string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
