package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the acting user's ID in the context. The domain layer
// trusts the caller to have authenticated; the ID is used for audit stamping
// only.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the acting user's ID, or zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(actorKey).(int64); ok {
		return v
	}
	return 0
}
