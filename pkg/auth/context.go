// Package auth resolves request identity. Every knowledge entry belongs to a
// user, so even anonymous requests are assigned an identity: in optional and
// disabled modes unauthenticated callers share a fixed fallback user.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "auth_user_id"

// ErrNoIdentity is returned when a context carries no user identity.
var ErrNoIdentity = errors.New("no user identity in context")

// WithUserID returns a context carrying the resolved user identity.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user identity set by the middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// RequireUserID extracts the user identity or errors if none is present.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, ErrNoIdentity
	}
	return userID, nil
}
