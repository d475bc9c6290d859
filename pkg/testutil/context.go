package testutil

import (
	"context"
	"time"

	"registra/pkg/requestcontext"
)

// Ctx returns a background context stamped with a fixed clock and actor, the
// typical state of a request that passed through the middleware stack.
func Ctx(now time.Time, actor string) context.Context {
	ctx := requestcontext.WithNow(context.Background(), now)
	if actor != "" {
		ctx = requestcontext.WithActor(ctx, actor)
	}
	return ctx
}
