package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "registra/pkg/domain-errors"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "tokens must be unique")
	assert.NotContains(t, a, "=", "tokens are raw base64url")
}

func TestHashAndVerify(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		hash, err := Hash("operator-secret")
		require.NoError(t, err)
		assert.NoError(t, Verify("operator-secret", hash))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		hash, err := Hash("operator-secret")
		require.NoError(t, err)
		err = Verify("wrong", hash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := Hash("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
