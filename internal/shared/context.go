package shared

import "context"

type userIDContextKey struct{}

// ContextWithUserID stores the caller id in context.
func ContextWithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext extracts the caller id, or nil for anonymous requests.
func UserIDFromContext(ctx context.Context) *int64 {
	id, ok := ctx.Value(userIDContextKey{}).(int64)
	if !ok {
		return nil
	}
	return &id
}
