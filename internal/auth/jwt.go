package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	UserID   uuid.UUID
	Username string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// ValidateToken checks an HS256 session token minted by the login service. This bank
// never issues sessions itself.
func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	sc, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}

	userID, err := uuid.Parse(sc.Subject)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid subject in token: %w", err)
	}

	return &Claims{
		UserID:   userID,
		Username: sc.Username,
	}, nil
}
