package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"registra/internal/platform/metrics"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/requestcontext"
)

// StreamPublisher mirrors recorded events to an external sink (Kafka). It is
// fire-and-forget: implementations must never block or fail the recording.
type StreamPublisher interface {
	Publish(ctx context.Context, event Event)
}

// Recorder is the single write path into the audit log. It pseudonymizes the
// actor, stamps identity and time, and appends within whatever transaction
// the caller's context carries.
//
// Recording is fail-closed: when the append fails the caller receives a
// CodeStorage error and must abort its own transition. Compliance allows no
// silent gaps.
type Recorder struct {
	store    Store
	mappings MappingStore
	pseudo   *Pseudonymizer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	stream   StreamPublisher
}

type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func WithStream(s StreamPublisher) RecorderOption {
	return func(r *Recorder) { r.stream = s }
}

func NewRecorder(store Store, mappings MappingStore, pseudo *Pseudonymizer, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, mappings: mappings, pseudo: pseudo}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. The actor (and any email/ip detail values) are
// pseudonymized before storage; raw PII never reaches the event store.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}

	var err error
	if event.Actor != "" && !strings.HasPrefix(event.Actor, "pseud:") {
		event.Actor, err = r.pseudo.Pseudonymize(ctx, event.Actor)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "pseudonymize audit actor")
		}
	}
	for _, key := range []string{"email", "ip"} {
		raw, ok := event.Detail[key].(string)
		if !ok || raw == "" || strings.HasPrefix(raw, "pseud:") {
			continue
		}
		event.Detail[key], err = r.pseudo.Pseudonymize(ctx, raw)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "pseudonymize audit detail")
		}
	}

	if err := r.store.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "append audit event")
	}

	if r.metrics != nil {
		r.metrics.IncAuditRecorded(string(event.Severity))
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, string(event.Type),
			"log_type", "audit",
			"severity", string(event.Severity),
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
			"result", event.Result,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if r.stream != nil {
		r.stream.Publish(ctx, event)
	}
	return nil
}

// Reveal resolves a pseudonym back to its raw value for right-to-access
// requests. The lookup itself is recorded as a pii_access event before the
// value is returned; if that recording fails, the value is withheld.
func (r *Recorder) Reveal(ctx context.Context, digest, reason string) (string, error) {
	raw, err := r.mappings.Find(ctx, digest)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeNotFound, "pseudonym mapping not found")
	}

	err = r.Record(ctx, Event{
		Type:         EventPiiAccess,
		Severity:     SeverityInfo,
		ResourceType: "pseudonym_mapping",
		ResourceID:   digest,
		Action:       "reveal",
		Result:       "success",
		Detail:       map[string]any{"reason": reason},
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// ListByResource returns the audit trail for one resource.
func (r *Recorder) ListByResource(ctx context.Context, resourceType, resourceID string) ([]Event, error) {
	return r.store.ListByResource(ctx, resourceType, resourceID)
}

// PurgeResult reports how many rows a retention sweep removed.
type PurgeResult struct {
	Events   int64
	Mappings int64
}

// Purge bulk-deletes events and pseudonym mappings older than the cutoff.
// Idempotent: a second run with the same cutoff removes nothing.
func (r *Recorder) Purge(ctx context.Context, olderThan time.Time) (PurgeResult, error) {
	events, err := r.store.DeleteOlderThan(ctx, olderThan)
	if err != nil {
		return PurgeResult{}, dErrors.Wrap(err, dErrors.CodeStorage, "purge audit events")
	}
	mappings, err := r.mappings.DeleteOlderThan(ctx, olderThan)
	if err != nil {
		return PurgeResult{}, dErrors.Wrap(err, dErrors.CodeStorage, "purge pseudonym mappings")
	}

	result := PurgeResult{Events: events, Mappings: mappings}
	if r.metrics != nil {
		r.metrics.AddAuditPurged(float64(events))
	}
	if result.Events > 0 || result.Mappings > 0 {
		// The sweep itself leaves a trace, stamped after the cutoff so the
		// next run does not immediately reap it.
		if err := r.Record(ctx, Event{
			Type:         EventRetentionPurged,
			Severity:     SeverityInfo,
			ResourceType: "audit_log",
			ResourceID:   "retention",
			Action:       "purge",
			Result:       "success",
			Detail: map[string]any{
				"events_removed":   result.Events,
				"mappings_removed": result.Mappings,
				"cutoff":           olderThan.Format(time.RFC3339),
			},
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}
