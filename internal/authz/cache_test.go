package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls int
	role  *Role
	err   error
}

func (l *countingLoader) GetRole(ctx context.Context, tenantID, roleID int64) (*Role, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	r := *l.role
	r.ID = roleID
	r.TenantID = tenantID
	return &r, nil
}

func TestPolicyCache_Builtin(t *testing.T) {
	loader := &countingLoader{}
	c := NewPolicyCache(loader, time.Minute)

	p, err := c.Policy(context.Background(), 1, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, p.Allows(EntityRole, ActionDelete))
	assert.Zero(t, loader.calls)
}

func TestPolicyCache_CachesAndExpires(t *testing.T) {
	loader := &countingLoader{role: &Role{Name: "custom", Grants: []Grant{{EntityDeal, ActionView, ScopeAll}}}}
	c := NewPolicyCache(loader, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := c.Policy(ctx, 1, 1001)
	require.NoError(t, err)
	_, err = c.Policy(ctx, 1, 1001)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)

	now = now.Add(2 * time.Minute)
	_, err = c.Policy(ctx, 1, 1001)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	c.Invalidate(1, 1001)
	p, err := c.Policy(ctx, 1, 1001)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.calls)
	assert.Equal(t, ScopeAll, p.Scope(EntityDeal, ActionView))

	_, err = c.Policy(ctx, 2, 1001)
	require.NoError(t, err)
	assert.Equal(t, 4, loader.calls, "tenants are cached separately")
}

func TestPolicyCache_LoaderError(t *testing.T) {
	c := NewPolicyCache(&countingLoader{err: errors.New("db down")}, time.Minute)
	_, err := c.Policy(context.Background(), 1, 1001)
	assert.ErrorContains(t, err, "db down")
}
