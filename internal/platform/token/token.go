// Package token issues and validates the HS256 bearer tokens used by the
// registry API. Tokens name the acting principal and its role; handlers
// stamp the subject into the request context as the audit actor.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "registra/pkg/domain-errors"
)

// Roles accepted by the API.
const (
	RoleAdmin = "admin"
	RoleParty = "party"
)

// Claims carries the acting principal. Subject is the party or operator
// identifier, Role gates the administrative surface.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and validates access tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     "registra",
	}
}

// Issue mints a token for the given subject and role.
func (s *Service) Issue(subject, role string, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}
