package shared

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated principal performing a request. Identity is
// always threaded explicitly through context, never read from ambient state.
type Actor struct {
	ID    uuid.UUID
	Email string
}

type actorContextKey struct{}

type orgContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned for unauthenticated contexts.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ContextWithOrg stores the organization scope in context.
func ContextWithOrg(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, orgContextKey{}, orgID)
}

// OrgFromContext extracts the organization scope from context.
func OrgFromContext(ctx context.Context) uuid.UUID {
	orgID, _ := ctx.Value(orgContextKey{}).(uuid.UUID)
	return orgID
}
