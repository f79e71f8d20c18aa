package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(role models.UserRole) models.JWTClaims {
	now := time.Now()
	return models.JWTClaims{
		UserID: "s-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "enrollment",
			Audience:  jwt.ClaimStrings{"enrollment-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func newTestAuthService() *AuthService {
	return NewAuthService(zap.NewNop(), AuthConfig{
		AccessTokenSecret: testSecret,
		Issuer:            "enrollment",
		Audience:          "enrollment-api",
		Leeway:            time.Second,
	})
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := newTestAuthService()

	claims, err := svc.ValidateToken(signToken(t, testSecret, validClaims(models.RoleStudent)))
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := newTestAuthService()

	expired := validClaims(models.RoleAdmin)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAudience := validClaims(models.RoleAdmin)
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noUser := validClaims(models.RoleAdmin)
	noUser.UserID = ""

	cases := map[string]string{
		"wrong secret":   signToken(t, "other-secret", validClaims(models.RoleAdmin)),
		"expired":        signToken(t, testSecret, expired),
		"wrong audience": signToken(t, testSecret, wrongAudience),
		"unknown role":   signToken(t, testSecret, validClaims("JANITOR")),
		"missing user":   signToken(t, testSecret, noUser),
		"garbage":        "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestAuthServiceRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestAuthService()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims(models.RoleAdmin))
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
