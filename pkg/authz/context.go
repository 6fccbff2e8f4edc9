package authz

import "context"

type principalContextKey struct{}

// WithPrincipal returns a child context carrying a copy of principal.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal.clone())
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok {
		return nil, false
	}
	cloned := principal.clone()
	return &cloned, true
}
