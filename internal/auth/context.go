// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the resolved principal

package auth

import (
	"context"
	"strconv"
)

// AuthContext holds the principal resolved by the authorization gate.
type AuthContext struct {
	PrincipalID int64
	Phone       string
	Role        string // "farmer" | "expert" | "admin"
}

// IsAdmin returns true if the principal has the admin role.
func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Role == "admin"
}

// UserKey is the principal id in the string form used by the chat log store.
func (a *AuthContext) UserKey() string {
	return strconv.FormatInt(a.PrincipalID, 10)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
