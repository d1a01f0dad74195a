package middlewarex

import "context"

type ctxKey string

const (
	ctxPrincipal ctxKey = "principal"
)

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxPrincipal, principal)
}

func Principal(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxPrincipal).(string)
	return v, ok && v != ""
}
