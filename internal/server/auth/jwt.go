// Package auth issues and verifies the JWT session tokens that gate access
// to a principal's private key material.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vkarpenko/filevault/internal/common"
)

// Claims carries the standard claims plus the authenticated principal ID.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID string
}

// GenerateToken mints an HS256 token for the principal.
func GenerateToken(principalID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		PrincipalID: principalID,
	})

	return token.SignedString(secretKey)
}

// GetPrincipalIDFromToken verifies the token and returns the principal ID.
func GetPrincipalIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidToken
	}
	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.PrincipalID, nil
}
