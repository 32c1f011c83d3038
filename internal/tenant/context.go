// Package tenant carries the current tenant id through request contexts.
//
// Repositories read the tenant with Require and add it to every statement,
// so a handler can never see rows of another tenant.
package tenant

import (
	"context"

	"crmhub/internal/models"
)

type ctxKey struct{}

// WithID returns a copy of ctx bound to the tenant.
func WithID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant id, if any.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// Require is FromContext that fails with models.ErrTenantRequired.
func Require(ctx context.Context) (int64, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return 0, models.ErrTenantRequired
	}
	return id, nil
}
