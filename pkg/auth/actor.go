package auth

import (
	"context"

	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
)

// Actor is the authenticated caller behind a request.
type Actor struct {
	ID   string
	Role enums.ActorRole
}

type actorKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// IsAdmin reports whether the actor may use back-office operations.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}
