package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vigil/pkg/domainerrors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")

func TestGenerateAndValidateAccessToken(t *testing.T) {
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "ana@example.com", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(uuid.New(), "", -time.Minute)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenWrongKey(t *testing.T) {
	other := NewJWTService("another-key", "test-issuer")
	token, err := other.GenerateAccessToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
