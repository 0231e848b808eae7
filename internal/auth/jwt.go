package auth

import (
	"fmt"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/golang-jwt/jwt/v5"
)

// IssueToken signs an HS256 bearer token whose subject is the caller address.
func IssueToken(secret, address string, ttl time.Duration) (string, error) {
	addr, err := types.NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the bearer token and returns the caller address.
func ParseToken(secret, raw string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	tk, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKey
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !tk.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return types.NormalizeAddress(claims.Subject)
}
