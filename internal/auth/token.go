package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind separates access tokens from the longer-lived refresh tokens
// issued by the account service. The shard only ever accepts access tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// ErrInvalidToken covers expired, malformed, and wrong-kind tokens. Callers
// disconnect the session on this error.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload the account service signs into each token.
type Claims struct {
	UserID string    `json:"sub"`
	Kind   TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Verifier validates tokens against the shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates a token, requiring the expected kind.
func (v *Verifier) VerifyToken(token string, kind TokenKind) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return Claims{}, fmt.Errorf("%w: kind %q, want %q", ErrInvalidToken, claims.Kind, kind)
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
