package principals

import (
	"context"

	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
)

type principalKey struct{}

// WithPrincipal stores the signed-in principal in ctx.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the signed-in principal or nil.
func FromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey{}).(*identity.Principal)
	return p
}
