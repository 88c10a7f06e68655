package shared

import "context"

// Actor identifies the authenticated user performing an operation. It replaces
// ambient global user state: handlers resolve it once from the session and it
// travels on the request context.
type Actor struct {
	UserID int64
	Name   string
	Email  string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means the
// request is unauthenticated (jobs run as the system actor instead).
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// SystemActor is used by scheduled jobs and internal recomputations.
var SystemActor = Actor{UserID: 0, Name: "system"}
