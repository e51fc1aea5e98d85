// Package auth carries the caller principal through request contexts and
// persists it between UI requests in a signed cookie.
package auth

import (
	"context"

	"finex/internal/core"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context acting on behalf of p.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the principal. The second value is false when the
// context is anonymous.
func PrincipalFrom(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(principalKey).(core.Principal)
	if !ok || p == "" {
		return "", false
	}
	return p, true
}

// RequirePrincipal is PrincipalFrom for backends: an anonymous context yields
// core.ErrUnauthorized.
func RequirePrincipal(ctx context.Context) (core.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", core.ErrUnauthorized
	}
	return p, nil
}
