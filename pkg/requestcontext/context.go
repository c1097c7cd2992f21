// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them, and
// neither side needs to import net/http for it.
package requestcontext

import "context"

// Context key types (unexported for encapsulation).
type (
	userIDKey    struct{}
	requestIDKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyUserID    = userIDKey{}
	ContextKeyRequestID = requestIDKey{}
)

// UserID retrieves the authenticated user ID from the context.
// Returns the empty string if not set.
func UserID(ctx context.Context) string {
	if userID, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// RequestID retrieves the request ID assigned by middleware.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
