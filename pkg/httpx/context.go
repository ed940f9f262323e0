package httpx

import "context"

type ctxKey string

// CtxKeyUserID holds the authenticated caller's user ID.
const CtxKeyUserID ctxKey = "user_id"

// UserIDFromContext returns the authenticated caller's user ID, or "" when
// the request is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID stores the authenticated caller's user ID in ctx.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, userID)
}
