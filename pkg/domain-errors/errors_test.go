package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeConflict, "duplicate pending request")
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "entity not found")
		wrapped := fmt.Errorf("loading owner: %w", inner)
		assert.True(t, HasCode(wrapped, CodeNotFound))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeStorage, "tx failed"))
	})

	t.Run("cause stays reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeStorage, "append audit event")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, CodeStorage, CodeOf(err))
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodePrecondition: http.StatusUnprocessableEntity,
		CodeValidation:   http.StatusBadRequest,
		CodeStorage:      http.StatusServiceUnavailable,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
