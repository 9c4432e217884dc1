// Package auth inspects the access token issued by the backend's verification step.
//
// The agent never holds the signing secret, so claims are read without
// verifying the signature. They are used for logging and for refusing to start
// with an obviously expired token; the backend remains the authority.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrTokenRequired = errors.New("access token is required")
	ErrTokenExpired  = errors.New("access token has expired")
	ErrNotStudent    = errors.New("access token was not issued to a student")
)

// TokenTypeStudent is the token_type claim of student tokens.
const TokenTypeStudent = "student"

// Claims are the backend's student token claims.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
	ClassID   int    `json:"class_id,omitempty"`
}

// Inspect reads claims from token. Opaque (non-JWT) tokens are accepted and
// yield nil claims. now is used for the expiry check.
func Inspect(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	if strings.Count(token, ".") != 2 {
		return nil, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	if claims.TokenType != "" && claims.TokenType != TokenTypeStudent {
		return claims, ErrNotStudent
	}
	return claims, nil
}

// Fingerprint is a stable, non-reversible identifier of token, safe to use
// in Redis keys and logs.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:12])
}
