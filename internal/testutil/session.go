package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionToken mints an HS256 session token of the shape the login service issues.
// A negative ttl yields an already expired token.
func SessionToken(t *testing.T, userID uuid.UUID, username, secret string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID.String(),
		"username": username,
		"iat":      jwt.NewNumericDate(now),
		"exp":      jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return signed
}
