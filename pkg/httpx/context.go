package httpx

import "context"

type ctxKey string

const (
	CtxKeyAccountID ctxKey = "account_id"
	CtxKeyScopes    ctxKey = "scopes"
)

// AccountIDFromContext returns the authenticated account ID injected by
// AuthnMiddleware, or "" when the request is unauthenticated.
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAccountID).(string); ok {
		return v
	}
	return ""
}

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
