package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenValidator validates bearer tokens and resolves them to a user identity.
// The abstraction enables testing with mock implementations.
type TokenValidator interface {
	// ValidateToken verifies a JWT and returns the user ID from its subject.
	ValidateToken(tokenString string) (uuid.UUID, error)
}

// JWKSValidator verifies JWT signatures against a remote JWKS endpoint. The
// key set is fetched and refreshed by keyfunc in the background.
type JWKSValidator struct {
	keyfunc keyfunc.Keyfunc
}

// NewJWKSValidator creates a validator backed by the given JWKS URL.
func NewJWKSValidator(ctx context.Context, jwksURL string) (*JWKSValidator, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return &JWKSValidator{keyfunc: kf}, nil
}

var _ TokenValidator = (*JWKSValidator)(nil)

// ValidateToken verifies the token signature and expiry and returns the
// subject as a user UUID.
func (v *JWKSValidator) ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, v.keyfunc.Keyfunc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return uuid.Nil, errors.New("token has no subject")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not a user ID: %w", err)
	}
	return userID, nil
}
