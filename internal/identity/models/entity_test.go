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

func newEntity(t *testing.T) *LegalEntity {
	t.Helper()
	e, err := NewLegalEntity(
		domain.EntityID(uuid.New()),
		domain.PartyID(uuid.New()),
		"Acme Logistics GmbH", "Hamburg", "Acme.Example",
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return e
}

func TestNewLegalEntityDefaults(t *testing.T) {
	e := newEntity(t)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, TierEmail, e.AuthTier)
	assert.Equal(t, MethodEmailVerification, e.AuthMethod)
	assert.Equal(t, "acme.example", e.Domain, "domain is normalized to lowercase")
}

func TestNewLegalEntityRejectsEmptyName(t *testing.T) {
	_, err := NewLegalEntity(domain.EntityID(uuid.New()), domain.PartyID(uuid.New()),
		"   ", "", "", time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestStatusTransitions(t *testing.T) {
	now := time.Now()

	t.Run("pending approves to active", func(t *testing.T) {
		e := newEntity(t)
		require.NoError(t, e.ApplyStatus(StatusActive, now))
		assert.True(t, e.IsActive())
	})

	t.Run("pending rejects", func(t *testing.T) {
		e := newEntity(t)
		require.NoError(t, e.ApplyStatus(StatusRejected, now))
		assert.False(t, e.IsActive())
	})

	t.Run("rejected is terminal", func(t *testing.T) {
		e := newEntity(t)
		require.NoError(t, e.ApplyStatus(StatusRejected, now))
		err := e.ApplyStatus(StatusActive, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	t.Run("suspension round trip", func(t *testing.T) {
		e := newEntity(t)
		require.NoError(t, e.ApplyStatus(StatusActive, now))
		require.NoError(t, e.ApplyStatus(StatusSuspended, now))
		require.NoError(t, e.ApplyStatus(StatusActive, now))
	})

	t.Run("tombstoned entity refuses transitions", func(t *testing.T) {
		e := newEntity(t)
		e.ApplyTombstone(now)
		err := e.ApplyStatus(StatusActive, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func TestTierBookkeeping(t *testing.T) {
	verifiedAt := time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)

	t.Run("domain verification sets tier 2 and schedules re-verification", func(t *testing.T) {
		e := newEntity(t)
		e.ApplyDomainVerification(verifiedAt, 90*24*time.Hour)
		assert.Equal(t, TierDomain, e.AuthTier)
		assert.Equal(t, MethodDomainVerification, e.AuthMethod)
		require.NotNil(t, e.DNSVerifiedAt)
		assert.Equal(t, verifiedAt, *e.DNSVerifiedAt)
		require.NotNil(t, e.ReverifyDueAt)
		assert.Equal(t, verifiedAt.Add(90*24*time.Hour), *e.ReverifyDueAt)
	})

	t.Run("strong assurance supersedes everything", func(t *testing.T) {
		e := newEntity(t)
		e.ApplyDomainVerification(verifiedAt, 90*24*time.Hour)
		e.ApplyStrongAssurance(verifiedAt.Add(time.Hour))
		assert.Equal(t, TierStrong, e.AuthTier)
		assert.Equal(t, MethodStrongAssurance, e.AuthMethod)
		assert.Nil(t, e.ReverifyDueAt, "re-verification deadline only applies to the domain tier")
	})

	t.Run("tier tracking survives suspension", func(t *testing.T) {
		e := newEntity(t)
		require.NoError(t, e.ApplyStatus(StatusActive, verifiedAt))
		require.NoError(t, e.ApplyStatus(StatusSuspended, verifiedAt))
		e.ApplyDomainVerification(verifiedAt, 90*24*time.Hour)
		assert.Equal(t, TierDomain, e.AuthTier, "status does not alter tier bookkeeping")
		assert.Equal(t, StatusSuspended, e.Status)
	})
}
