// Package requestctx carries request-scoped identity across service layers.
package requestctx

import "context"

// Identity is the authenticated, tenant-scoped caller.
type Identity struct {
	UserID       string
	TenantID     string
	Capabilities []string
}

// HasCapability reports whether the caller carries the named capability.
func (i Identity) HasCapability(capability string) bool {
	for _, held := range i.Capabilities {
		if held == capability {
			return true
		}
	}
	return false
}

// identityContextKey is the context key for authenticated caller identity.
type identityContextKey struct{}

// WithIdentity stores a caller identity in context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the caller identity stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	value, ok := ctx.Value(identityContextKey{}).(Identity)
	return value, ok
}
