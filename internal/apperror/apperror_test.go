package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalMasksCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Internal("", cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Equal(t, CodeInternal, err.Code)
	assert.NotContains(t, err.Message, "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestAsWrapsPlainErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Forbidden(CodeNotHost, "not host"))

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeNotHost, got.Code)
	assert.Equal(t, http.StatusForbidden, got.Status)

	plain := As(errors.New("boom"))
	assert.Equal(t, CodeInternal, plain.Code)

	assert.Nil(t, As(nil))
}

func TestHasCodeAndIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflict(CodeMembersNotReady, "members not ready"))

	assert.True(t, HasCode(err, CodeMembersNotReady))
	assert.False(t, HasCode(err, CodeNotHost))
	assert.ErrorIs(t, err, Conflict(CodeMembersNotReady, "any message"))
}

func TestUnauthorizedKeepsDiagnostic(t *testing.T) {
	err := Unauthorized("token-expired", nil)
	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.Contains(t, err.Error(), "token-expired")
}
