package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "consentry/pkg/domain-errors"
)

var tokenService = NewService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

func Test_MintAndValidate(t *testing.T) {
	subject := "3f2c8a1d9e"
	tok, err := tokenService.Mint(subject, ScopeContact, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := tokenService.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, string(ScopeContact), claims.Scope)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_Validate_InvalidToken(t *testing.T) {
	_, err := tokenService.Validate("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_ExpiredToken(t *testing.T) {
	tok, err := tokenService.Mint("subject", ScopeAdmin, -time.Hour)
	require.NoError(t, err)

	_, err = tokenService.Validate(tok)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_WrongKey(t *testing.T) {
	other := NewService("other-signing-key", "test-issuer", "test-audience")
	tok, err := other.Mint("subject", ScopeSupport, time.Hour)
	require.NoError(t, err)

	_, err = tokenService.Validate(tok)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
