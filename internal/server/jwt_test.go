package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/config"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T, expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret:          testSecret,
		ExpirationHours: expirationHours,
		Issuer:          "tender-radar",
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := setupTestJWTService(t, 24)

	token, expiresAt, err := service.GenerateToken("ops-dashboard")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-dashboard", claims.Subject)
	assert.Equal(t, "tender-radar", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_UniqueTokenIDs(t *testing.T) {
	service := setupTestJWTService(t, 24)

	a, _, err := service.GenerateToken("cli")
	require.NoError(t, err)
	b, _, err := service.GenerateToken("cli")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJWTService_EmptySubject(t *testing.T) {
	_, _, err := setupTestJWTService(t, 24).GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	service := setupTestJWTService(t, 1)
	service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := service.GenerateToken("cli")
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	assert.Contains(t, err.Error(), "token expired")
}

func TestJWTService_Rejects(t *testing.T) {
	service := setupTestJWTService(t, 24)
	token, _, err := service.GenerateToken("cli")
	require.NoError(t, err)

	otherSecret := NewJWTService(&config.JWTConfig{Secret: "another-secret-another-secret-1234", ExpirationHours: 24, Issuer: "tender-radar"})
	otherIssuer := NewJWTService(&config.JWTConfig{Secret: testSecret, ExpirationHours: 24, Issuer: "someone-else"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "cli", Issuer: "tender-radar"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		service *JWTService
		token   string
	}{
		{name: "empty", service: service, token: ""},
		{name: "garbage", service: service, token: "not.a.jwt"},
		{name: "wrong secret", service: otherSecret, token: token},
		{name: "wrong issuer", service: otherIssuer, token: token},
		{name: "alg none", service: service, token: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.service.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, 24)
	token, _, err := service.GenerateToken("cli")
	require.NoError(t, err)

	claims, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	subject, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "cli", subject)
}
