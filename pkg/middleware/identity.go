// Package middleware provides request-context helpers shared by the
// API middleware and handlers.
package middleware

import (
	"context"

	"github.com/agentdesk/agentdesk/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// SetIdentity stores the authenticated Identity in the context.
// Called by the auth middleware after successful authentication.
func SetIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity retrieves the authenticated Identity from the context.
// Returns nil if no identity is set (unauthenticated request).
func GetIdentity(ctx context.Context) *auth.Identity {
	if v, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return v
	}
	return nil
}

// GetUserID returns the authenticated user's ID, or "" for
// unauthenticated requests. Handlers behind the auth middleware can
// rely on a non-empty result.
func GetUserID(ctx context.Context) string {
	if id := GetIdentity(ctx); id != nil {
		return id.UserID
	}
	return ""
}
