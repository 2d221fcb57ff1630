package requisition

import "context"

type actorKey struct{}

// ContextWithActor stores the acting user on ctx.
func ContextWithActor(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorFromContext returns the acting user placed by the identity middleware.
func ActorFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(actorKey{}).(User)
	return user, ok && user.ID != ""
}
