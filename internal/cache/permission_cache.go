// Redis-backed secondary cache for resolved permissions, replacing a
// project/file listing cache (project_cache.go) with a cache
// keyed the way internal/permissions.Resolver needs: (user_id,
// resource_id). Sits behind the resolver's in-process map so a
// resolution survives process restarts and is shared across instances —
// the in-process map stays authoritative for hot-path latency, this is the
// secondary tier.
package cache

import (
	"context"
	"fmt"
	"time"
)

// CachedResolvedPermission mirrors permissions.ResolvedPermission's shape
// without importing that package, keeping internal/cache free of a
// dependency on internal/permissions (the wiring direction goes the other
// way: permissions depends on cache, not vice versa).
type CachedResolvedPermission struct {
	UserID       string   `json:"user_id"`
	ResourceKind string   `json:"resource_kind"`
	ResourceID   string   `json:"resource_id"`
	DirectTokens []string `json:"direct_tokens"`
	Effective    []string `json:"effective"`
	Role         string   `json:"role"`
	CachedAt     time.Time `json:"cached_at"`
}

// PermissionCache wraps RedisCache with the permission-resolution key
// scheme and a short TTL — this tier is an optimization, not a source of
// truth, so a stale read is bounded by TTL rather than relying solely on
// explicit invalidation.
type PermissionCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewPermissionCache builds a PermissionCache with the given TTL (0 uses a
// 30s default, matching the prior project-listing TTL convention).
func NewPermissionCache(cache *RedisCache, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PermissionCache{cache: cache, ttl: ttl}
}

func permissionCacheKey(userID, resourceID string) string {
	return fmt.Sprintf("perm:%s:%s", userID, resourceID)
}

func userPermissionsPattern(userID string) string {
	return fmt.Sprintf("perm:%s:*", userID)
}

// Get retrieves a cached resolution, returning ok=false on a cache miss.
func (p *PermissionCache) Get(ctx context.Context, userID, resourceID string) (*CachedResolvedPermission, bool) {
	var result CachedResolvedPermission
	if err := p.cache.GetJSON(ctx, permissionCacheKey(userID, resourceID), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set caches a resolution.
func (p *PermissionCache) Set(ctx context.Context, v CachedResolvedPermission) error {
	v.CachedAt = time.Now()
	return p.cache.SetJSON(ctx, permissionCacheKey(v.UserID, v.ResourceID), v, p.ttl)
}

// InvalidateUser drops every cached resolution for userID.
func (p *PermissionCache) InvalidateUser(ctx context.Context, userID string) error {
	return p.cache.DeletePattern(ctx, userPermissionsPattern(userID))
}

// InvalidateResource drops userID's cached resolution for one resource.
func (p *PermissionCache) InvalidateResource(ctx context.Context, userID, resourceID string) error {
	return p.cache.Delete(ctx, permissionCacheKey(userID, resourceID))
}
