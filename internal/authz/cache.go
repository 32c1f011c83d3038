package authz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RoleLoader fetches a tenant-defined role.
type RoleLoader interface {
	GetRole(ctx context.Context, tenantID, roleID int64) (*Role, error)
}

type cacheKey struct {
	tenantID int64
	roleID   int64
}

type cacheEntry struct {
	policy    *Policy
	expiresAt time.Time
}

// PolicyCache compiles roles once and keeps them for ttl. Built-in roles
// never hit the loader.
type PolicyCache struct {
	loader RoleLoader
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

func NewPolicyCache(loader RoleLoader, ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PolicyCache{
		loader:  loader,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *PolicyCache) Policy(ctx context.Context, tenantID, roleID int64) (*Policy, error) {
	if p, ok := builtinPolicy[roleID]; ok {
		return p, nil
	}

	key := cacheKey{tenantID, roleID}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.policy, nil
	}

	role, err := c.loader.GetRole(ctx, tenantID, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role %d: %w", roleID, err)
	}
	p := Compile(*role)

	c.mu.Lock()
	c.entries[key] = cacheEntry{policy: p, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return p, nil
}

// Invalidate drops a cached role after it was changed or removed.
func (c *PolicyCache) Invalidate(tenantID, roleID int64) {
	c.mu.Lock()
	delete(c.entries, cacheKey{tenantID, roleID})
	c.mu.Unlock()
}
