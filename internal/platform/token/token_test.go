package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "registra/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("unit-test-key")

	signed, err := svc.Issue("party:acme", RoleParty, time.Minute)
	require.NoError(t, err)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "party:acme", claims.Subject)
	assert.Equal(t, RoleParty, claims.Role)
	assert.Equal(t, "registra", claims.Issuer)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("unit-test-key")

	signed, err := svc.Issue("ops:reviewer", RoleAdmin, -time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signed, err := NewService("key-a").Issue("party:acme", RoleParty, time.Minute)
	require.NoError(t, err)

	_, err = NewService("key-b").Validate(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
