package auth

import (
	"context"

	"github.com/streamsafe/backend/internal/models"
)

type identityKey struct{}

// WithIdentity stores the authenticated caller on the context.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller attached by the session gate.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	if ctx == nil {
		return models.Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(models.Identity)
	return identity, ok && identity.ID != ""
}
