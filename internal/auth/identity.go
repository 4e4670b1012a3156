// Package auth authenticates API callers from the X-API-Key header, enforces
// scope sets per route, and applies per-credential rate limits.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	UserID uuid.UUID
	KeyID  string
	Scopes []string
}

// HasScope reports whether the identity holds the scope or admin.
func (id *Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope || s == "admin" {
			return true
		}
	}
	return false
}

type contextKey string

const identityKey contextKey = "identity"

// NewContext returns a context carrying the identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context, or nil.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}
