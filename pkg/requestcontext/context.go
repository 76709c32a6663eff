// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware on the callback listener sets the request ID and request time; the
// verification service and stores only read them, so they never import net/http.
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithRequestID(ctx, "req-1")
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	requesterIDKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyRequesterID = requesterIDKey{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequesterID retrieves the platform user ID of whoever triggered the current
// command or verification flow.
func RequesterID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequesterID).(string); ok {
		return id
	}
	return ""
}

// WithRequesterID injects the invoking platform user ID into the context.
func WithRequesterID(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequesterID, requesterID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (chat interactions, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
