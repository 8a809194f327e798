package auth

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}
var resourceCtxKey = &contextKey{"resource_id"}

type contextKey struct {
	name string
}

// WithIdentity sets the resolved Identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity in the context
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	raw, ok := ctx.Value(identityCtxKey).(Identity)
	return raw, ok
}

// WithResourceID stores the path's target resource id
func WithResourceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, resourceCtxKey, id)
}

// ResourceIDFromContext returns the target resource id, if any
func ResourceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	raw, ok := ctx.Value(resourceCtxKey).(string)
	return raw, ok && raw != ""
}
