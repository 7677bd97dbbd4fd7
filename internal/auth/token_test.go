package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyTokenAcceptsValidAccessToken(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		UserID: "u1",
		Kind:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.VerifyToken(token, TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
}

func TestVerifyTokenRejectsWrongKind(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		UserID: "u1",
		Kind:   TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.VerifyToken(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		UserID: "u1",
		Kind:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := v.VerifyToken(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "other", Claims{
		UserID: "u1",
		Kind:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.VerifyToken(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		Kind: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.VerifyToken(token, TokenAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}
