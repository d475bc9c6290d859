package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registra/pkg/domain"
	dErrors "registra/pkg/domain-errors"
)

var now = time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)

func newEndpoint(t *testing.T, model AccessModel) *Endpoint {
	t.Helper()
	e, err := NewEndpoint(
		domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
		"freight-status", "https://api.acme.example/freight", "rest", model, now)
	require.NoError(t, err)
	return e
}

func TestNewEndpointValidation(t *testing.T) {
	_, err := NewEndpoint(domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
		"", "https://api.acme.example", "rest", AccessModelOpen, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewEndpoint(domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
		"x", "not a url", "rest", AccessModelOpen, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewEndpoint(domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
		"x", "https://api.acme.example", "rest", AccessModel("secret"), now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestPublishedAtIsWrittenOnce(t *testing.T) {
	e := newEndpoint(t, AccessModelRestricted)
	assert.Equal(t, PublicationDraft, e.PublicationStatus)

	e.ApplyPublish(now)
	require.NotNil(t, e.PublishedAt)
	first := *e.PublishedAt

	changed := e.ApplyUnpublish(now.Add(time.Hour))
	assert.True(t, changed)
	assert.False(t, e.ApplyUnpublish(now.Add(2*time.Hour)))

	e.ApplyPublish(now.Add(3 * time.Hour))
	assert.Equal(t, first, *e.PublishedAt)
	assert.True(t, e.IsPublished())
}

func TestAccessRequestDecisions(t *testing.T) {
	newRequest := func(t *testing.T) *AccessRequest {
		r, err := NewAccessRequest(domain.RequestID(uuid.New()),
			domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
			[]string{"read", "write", "read"}, now)
		require.NoError(t, err)
		return r
	}

	t.Run("requested scopes are deduplicated", func(t *testing.T) {
		r := newRequest(t)
		assert.Equal(t, []string{"read", "write"}, r.RequestedScopes)
	})

	t.Run("empty scope list is rejected", func(t *testing.T) {
		_, err := NewAccessRequest(domain.RequestID(uuid.New()),
			domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
			[]string{"", ""}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("approval scopes must be a subset", func(t *testing.T) {
		r := newRequest(t)
		err := r.ApplyApproval([]string{"read", "admin"}, "provider", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.True(t, r.IsPending())

		require.NoError(t, r.ApplyApproval([]string{"read"}, "provider", now))
		assert.Equal(t, RequestApproved, r.Status)
		assert.Equal(t, []string{"read"}, r.ApprovedScopes)
	})

	t.Run("empty approval authorizes nothing", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.ApplyApproval(nil, "provider", now))
		assert.Equal(t, RequestApproved, r.Status)
		assert.Empty(t, r.ApprovedScopes)

		r2 := newRequest(t)
		require.NoError(t, r2.ApplyApproval([]string{}, "provider", now))
		assert.Empty(t, r2.ApprovedScopes)
	})

	t.Run("denial requires a reason", func(t *testing.T) {
		r := newRequest(t)
		err := r.ApplyDenial("", "provider", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		require.NoError(t, r.ApplyDenial("tier too low", "provider", now))
		assert.Equal(t, RequestDenied, r.Status)
	})

	t.Run("settled requests cannot be decided again", func(t *testing.T) {
		r := newRequest(t)
		require.NoError(t, r.ApplyApproval(nil, "provider", now))
		err := r.ApplyDenial("too late", "provider", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func TestConsumerGrant(t *testing.T) {
	r, err := NewAccessRequest(domain.RequestID(uuid.New()),
		domain.EndpointID(uuid.New()), domain.EntityID(uuid.New()),
		[]string{"read"}, now)
	require.NoError(t, err)

	t.Run("requires an approved request", func(t *testing.T) {
		_, err := NewConsumerGrant(domain.GrantID(uuid.New()), r, "client-1", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	require.NoError(t, r.ApplyApproval([]string{"read"}, "provider", now))
	g, err := NewConsumerGrant(domain.GrantID(uuid.New()), r, "client-1", now)
	require.NoError(t, err)
	assert.True(t, g.Active)
	assert.Equal(t, r.ApprovedScopes, g.Scopes)

	t.Run("revocation is terminal", func(t *testing.T) {
		require.NoError(t, g.ApplyRevocation("contract ended", now))
		assert.False(t, g.Active)
		assert.Equal(t, "contract ended", g.RevokedReason)

		err := g.ApplyRevocation("again", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}
