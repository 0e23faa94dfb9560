package testutil

import (
	"context"
	"time"

	"courier/pkg/requestcontext"
)

// CommandContext returns a context prepared the way the transport layer
// prepares one for a command: a fixed request time plus request and actor ids.
// Empty ids are left unset.
func CommandContext(at time.Time, requestID, actorID string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	if requestID != "" {
		ctx = requestcontext.WithRequestID(ctx, requestID)
	}
	if actorID != "" {
		ctx = requestcontext.WithActorID(ctx, actorID)
	}
	return ctx
}
