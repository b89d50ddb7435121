// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/OHMS-DeAI/ohms-gateway/internal/transport"
)

// AuthContext holds the authenticated identity extracted from a request.
// Anonymous requests carry the anonymous principal.
type AuthContext struct {
	Principal string // canonical text form of the caller principal
}

// IsAnonymous returns true if no authenticated principal is bound.
func (a *AuthContext) IsAnonymous() bool {
	return a.Principal == "" || a.Principal == transport.AnonymousPrincipal
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// Principal returns the principal bound to ctx, or the anonymous principal.
func Principal(ctx context.Context) string {
	if a := FromContext(ctx); a != nil && a.Principal != "" {
		return a.Principal
	}
	return transport.AnonymousPrincipal
}
