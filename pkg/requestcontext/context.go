// Package requestcontext carries per-request values that business logic may
// depend on: the evaluation clock, the request correlation ID, and the actor
// performing the operation.
//
// Services never read the wall clock directly; they call Now(ctx) so tests
// and replay tooling can pin time.
package requestcontext

import (
	"context"
	"time"
)

type nowKey struct{}
type requestIDKey struct{}
type actorKey struct{}

// WithNow pins the evaluation clock for the remainder of the request.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

// Now returns the pinned clock value, falling back to time.Now when the
// request was not stamped (e.g. background sweeps constructing their own
// context should stamp it themselves).
func Now(ctx context.Context) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now
	}
	return time.Now()
}

// WithRequestID attaches the correlation ID assigned by the transport layer.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID, or "" outside a request.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithActor records who is performing the operation (an admin subject or a
// consumer entity ID). The audit layer pseudonymizes it before storage.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the acting principal, or "" when anonymous.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return ""
}
