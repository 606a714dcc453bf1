package common

import "context"

type ctxKey int

const userIDKey ctxKey = iota

// WithUserID attaches the authenticated user ID to the context. The auth
// middleware is the only writer.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated user ID, if the request carried one.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
