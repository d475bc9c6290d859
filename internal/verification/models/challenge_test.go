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

var now = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func newChallenge(t *testing.T) *DomainVerificationChallenge {
	t.Helper()
	c, err := NewDomainVerificationChallenge(
		domain.ChallengeID(uuid.New()), domain.EntityID(uuid.New()),
		"Acme.Example", "tok-abc123", 72*time.Hour, now)
	require.NoError(t, err)
	return c
}

func TestNewDomainVerificationChallenge(t *testing.T) {
	c := newChallenge(t)
	assert.Equal(t, ChallengePending, c.Status)
	assert.Equal(t, "acme.example", c.Domain)
	assert.Equal(t, "_registra-challenge.acme.example", c.RecordName)
	assert.Equal(t, 0, c.Attempts)
	assert.Equal(t, now.Add(72*time.Hour), c.ExpiresAt)
	assert.NotEmpty(t, c.TokenHash)
	assert.NotEqual(t, c.Token, c.TokenHash)

	_, err := NewDomainVerificationChallenge(
		domain.ChallengeID(uuid.New()), domain.EntityID(uuid.New()),
		"  ", "tok", time.Hour, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestMatchesProof(t *testing.T) {
	c := newChallenge(t)
	assert.True(t, c.MatchesProof([]string{"unrelated", " tok-abc123 "}))
	assert.False(t, c.MatchesProof([]string{"tok-abc12", "TOK-ABC123"}))
	assert.False(t, c.MatchesProof(nil))

	// The match runs against the hash, so it works on challenges loaded
	// from the store where the plaintext is gone.
	c.Token = ""
	assert.True(t, c.MatchesProof([]string{"tok-abc123"}))
}

func TestFailedAttemptsReachCeiling(t *testing.T) {
	c := newChallenge(t)
	c.ApplyFailedAttempt(3, now)
	c.ApplyFailedAttempt(3, now)
	assert.Equal(t, ChallengePending, c.Status)
	assert.Equal(t, 2, c.Attempts)

	c.ApplyFailedAttempt(3, now)
	assert.Equal(t, ChallengeFailed, c.Status)
	assert.Error(t, c.CanEvaluate())
}

func TestTerminalStatesRejectEvaluation(t *testing.T) {
	for _, status := range []ChallengeStatus{ChallengeVerified, ChallengeExpired, ChallengeFailed} {
		c := newChallenge(t)
		c.Status = status
		err := c.CanEvaluate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition), string(status))
	}
}

func TestExpiry(t *testing.T) {
	c := newChallenge(t)
	assert.False(t, c.IsExpired(now.Add(71*time.Hour)))
	assert.True(t, c.IsExpired(now.Add(72*time.Hour)))
}
