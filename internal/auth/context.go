package auth

import (
	"context"

	"github.com/fixhub/fixhub/internal/orm/rls"
)

type principalKey struct{}

// Principal is the authenticated caller of a request
type Principal struct {
	UserID int64
	Role   string
}

// WithPrincipal returns a new context carrying the principal
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal in ctx, or nil if unauthenticated
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// RLSContext builds the row-level security context for the principal
func (p *Principal) RLSContext() *rls.Context {
	if p == nil {
		return &rls.Context{Policy: rls.DenyAll}
	}
	return &rls.Context{
		Policy: PolicyForRole(p.Role),
		UserID: p.UserID,
		Role:   p.Role,
	}
}
