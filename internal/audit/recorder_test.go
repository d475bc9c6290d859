package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registra/internal/audit"
	auditmem "registra/internal/audit/store/memory"
	"registra/internal/platform/metrics"
	dErrors "registra/pkg/domain-errors"
	"registra/pkg/requestcontext"
)

func newRecorder(t *testing.T) (*audit.Recorder, *auditmem.Store) {
	t.Helper()
	store := auditmem.NewStore()
	mappings := auditmem.NewMappingStore()
	pseudo := audit.NewPseudonymizer([]byte("test-key"), mappings)
	rec := audit.NewRecorder(store, mappings, pseudo,
		audit.WithMetrics(metrics.NewForTesting()))
	return rec, store
}

func TestRecordPseudonymizesActor(t *testing.T) {
	rec, store := newRecorder(t)
	ctx := requestcontext.WithActor(context.Background(), "admin@example.com")

	err := rec.Record(ctx, audit.Event{
		Type:         audit.EventEntityApproved,
		Severity:     audit.SeverityInfo,
		ResourceType: "legal_entity",
		ResourceID:   "abc",
		Action:       "approve",
		Result:       "success",
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.NotEqual(t, "admin@example.com", events[0].Actor)
	assert.Contains(t, events[0].Actor, "pseud:")
	assert.NotContains(t, events[0].Actor, "example.com")
}

func TestRecordPseudonymizesDetailPII(t *testing.T) {
	rec, store := newRecorder(t)

	err := rec.Record(context.Background(), audit.Event{
		Type:         audit.EventAccessRequested,
		Severity:     audit.SeverityInfo,
		ResourceType: "access_request",
		ResourceID:   "req-1",
		Action:       "request",
		Result:       "pending",
		Detail:       map[string]any{"email": "ops@consumer.example", "scopes": "read"},
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Detail["email"], "pseud:")
	assert.Equal(t, "read", events[0].Detail["scopes"], "non-PII detail untouched")
}

func TestRevealIsItselfAudited(t *testing.T) {
	ctx := context.Background()
	store := auditmem.NewStore()
	mappings := auditmem.NewMappingStore()
	pseudo := audit.NewPseudonymizer([]byte("test-key"), mappings)
	rec := audit.NewRecorder(store, mappings, pseudo)

	digest, err := pseudo.Pseudonymize(ctx, "person@example.com")
	require.NoError(t, err)

	raw, err := rec.Reveal(ctx, digest, "data subject access request")
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", raw)

	events := store.All()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventPiiAccess, events[0].Type)

	_, err = rec.Reveal(ctx, "pseud:unknown", "curiosity")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestPurgeRespectsCutoffAndIsIdempotent(t *testing.T) {
	rec, store := newRecorder(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	old := requestcontext.WithNow(context.Background(), base.Add(-91*24*time.Hour))
	recent := requestcontext.WithNow(context.Background(), base.Add(-time.Hour))

	for i, ctx := range []context.Context{old, old, recent} {
		require.NoError(t, rec.Record(ctx, audit.Event{
			Type:         audit.EventEndpointPublished,
			Severity:     audit.SeverityInfo,
			ResourceType: "endpoint",
			ResourceID:   "ep",
			Action:       "publish",
			Result:       "success",
		}), i)
	}

	cutoff := base.Add(-90 * 24 * time.Hour)
	ctx := requestcontext.WithNow(context.Background(), base)

	result, err := rec.Purge(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Events)

	// Second run removes nothing new (the sweep's own trace is post-cutoff).
	result, err = rec.Purge(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.Events)

	var kept int
	for _, e := range store.All() {
		if e.Type == audit.EventEndpointPublished {
			kept++
		}
	}
	assert.Equal(t, 1, kept, "only the recent event survives")
}

func TestPseudonymDigestIsDeterministic(t *testing.T) {
	mappings := auditmem.NewMappingStore()
	pseudo := audit.NewPseudonymizer([]byte("key-a"), mappings)
	other := audit.NewPseudonymizer([]byte("key-b"), mappings)

	assert.Equal(t, pseudo.Digest("x@example.com"), pseudo.Digest("x@example.com"))
	assert.NotEqual(t, pseudo.Digest("x@example.com"), other.Digest("x@example.com"),
		"digest must depend on the key")
}
