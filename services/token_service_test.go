package services

import (
	"testing"
	"time"

	"github.com/pushboard/pushboard/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTokenService() TokenService {
	return NewTokenService(&config.JWTConfig{
		SecretKey: "test-secret-key-for-jwt-signing-32ch",
		TokenTTL:  15 * time.Minute,
		Issuer:    "pushboard-test",
		Audience:  "pushboard-api",
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := createTestTokenService()

	token, err := svc.GenerateToken("operator@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "operator@example.com", claims.Subject)
	assert.Equal(t, "pushboard-test", claims.Issuer)
	assert.Equal(t, "pushboard-api", claims.Audience)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewTokenService(&config.JWTConfig{
		SecretKey: "test-secret-key-for-jwt-signing-32ch",
		TokenTTL:  -time.Minute,
		Issuer:    "pushboard-test",
		Audience:  "pushboard-api",
	})

	token, err := svc.GenerateToken("operator@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := createTestTokenService()
	other := NewTokenService(&config.JWTConfig{
		SecretKey: "a-completely-different-secret-key-xx",
		TokenTTL:  15 * time.Minute,
		Issuer:    "pushboard-test",
		Audience:  "pushboard-api",
	})

	token, err := other.GenerateToken("operator@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	svc := createTestTokenService()
	other := NewTokenService(&config.JWTConfig{
		SecretKey: "test-secret-key-for-jwt-signing-32ch",
		TokenTTL:  15 * time.Minute,
		Issuer:    "someone-else",
		Audience:  "pushboard-api",
	})

	token, err := other.GenerateToken("operator@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := createTestTokenService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"not a jwt", "not-a-token"},
		{"truncated jwt", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}
