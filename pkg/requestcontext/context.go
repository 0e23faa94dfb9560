// Package requestcontext provides transport-independent context accessors for
// request-scoped values that end up in event metadata.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	actor := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey     struct{}
	actorIDKey       struct{}
	correlationIDKey struct{}
	requestTimeKey   struct{}
)

var (
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyActorID       = actorIDKey{}
	ContextKeyCorrelationID = correlationIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
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

// ActorID retrieves the id of whoever issued the command (user, courier, job).
func ActorID(ctx context.Context) string {
	if actor, ok := ctx.Value(ContextKeyActorID).(string); ok {
		return actor
	}
	return ""
}

// WithActorID injects the acting principal into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// CorrelationID retrieves the id linking commands that belong to one flow,
// e.g. a checkout that creates a payment and a delivery.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID injects a correlation id into the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// Metadata collects the request-scoped values that are set into a map suitable
// for event metadata. Unset values are omitted.
func Metadata(ctx context.Context) map[string]string {
	md := make(map[string]string, 3)
	if v := RequestID(ctx); v != "" {
		md["request_id"] = v
	}
	if v := ActorID(ctx); v != "" {
		md["actor_id"] = v
	}
	if v := CorrelationID(ctx); v != "" {
		md["correlation_id"] = v
	}
	return md
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that need deterministic event timestamps
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
