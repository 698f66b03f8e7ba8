package auth

import (
	"context"
)

// Principal is the authenticated caller. Subject is the identity id the
// contract service authorizes against.
type Principal struct {
	Subject string
	Email   string
}

type ctxKeyPrincipal struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v, ok := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return v, ok
}
