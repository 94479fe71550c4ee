package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticateToUser(t *testing.T) {
	a := NewAuthenticator(testSecret)
	ctx := context.Background()

	validClaims := jwt.MapClaims{
		"iss":  Issuer,
		"sub":  "user-123",
		"name": "Ada",
		"tier": "pro",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}

	t.Run("bearer header", func(t *testing.T) {
		token := signToken(t, testSecret, validClaims)

		user, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.NoError(t, err)
		require.Equal(t, "user-123", user.ID)
		require.Equal(t, "Ada", user.Name)
		require.Equal(t, "pro", user.Tier)
	})

	t.Run("cookie", func(t *testing.T) {
		token := signToken(t, testSecret, validClaims)

		user, err := a.AuthenticateToUser(ctx, "", CookieName+"="+token)
		require.NoError(t, err)
		require.Equal(t, "user-123", user.ID)
	})

	t.Run("bearer header wins over cookie", func(t *testing.T) {
		headerToken := signToken(t, testSecret, validClaims)
		cookieClaims := jwt.MapClaims{
			"iss": Issuer,
			"sub": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		cookieToken := signToken(t, testSecret, cookieClaims)

		user, err := a.AuthenticateToUser(ctx, "Bearer "+headerToken, CookieName+"="+cookieToken)
		require.NoError(t, err)
		require.Equal(t, "user-123", user.ID)
	})

	t.Run("no token", func(t *testing.T) {
		_, err := a.AuthenticateToUser(ctx, "", "")
		require.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", validClaims)

		_, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := jwt.MapClaims{
			"iss": "someone-else",
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token := signToken(t, testSecret, claims)

		_, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := jwt.MapClaims{
			"iss": Issuer,
			"sub": "user-123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}
		token := signToken(t, testSecret, claims)

		_, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := jwt.MapClaims{
			"iss": Issuer,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token := signToken(t, testSecret, claims)

		_, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.Error(t, err)
	})

	t.Run("missing tier defaults to empty, not an error", func(t *testing.T) {
		claims := jwt.MapClaims{
			"iss": Issuer,
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		token := signToken(t, testSecret, claims)

		user, err := a.AuthenticateToUser(ctx, "Bearer "+token, "")
		require.NoError(t, err)
		require.Empty(t, user.Tier)
	})
}
