// Package auth signs and verifies the service's JWTs: bearer access tokens
// for the API and short-lived download capabilities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const accessAudience = "access"

var (
	ErrTokenExpired = fmt.Errorf("%w: token expired", common.ErrUnauthorized)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", common.ErrUnauthorized)
)

// Claims carries the authenticated user in an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	if err := parse(tokenString, claims, secretKey, accessAudience, time.Now); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

// parse verifies signature, algorithm, audience and expiry, folding every
// failure into common.ErrUnauthorized.
func parse(tokenString string, claims jwt.Claims, secretKey []byte, audience string, now func() time.Time) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
