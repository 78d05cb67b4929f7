package auth

import (
	"context"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

type contextKey struct{}

// WithPrincipal attaches a verified principal to the request context.
func WithPrincipal(ctx context.Context, p *types.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the request's principal, or nil when the
// request is unauthenticated. Handlers never see a partially populated
// principal: it is either fully verified or absent.
func PrincipalFromContext(ctx context.Context) *types.Principal {
	p, _ := ctx.Value(contextKey{}).(*types.Principal)
	return p
}
