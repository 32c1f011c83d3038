package authz

import (
	"context"

	"crmhub/internal/tenant"
)

// Actor is the authenticated user behind a request.
type Actor struct {
	UserID   int64
	TenantID int64
	RoleID   int64
}

type actorKey struct{}

// WithActor binds the actor and its tenant to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = tenant.WithID(ctx, a.TenantID)
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
