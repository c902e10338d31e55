package permissions

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/collabforge/core/internal/cache"
	"github.com/collabforge/core/internal/logging"
	"github.com/collabforge/core/internal/metrics"
)

// DefaultMaxDepth is the traversal depth cap (MAX_INHERITANCE_DEPTH).
const DefaultMaxDepth = 5

// Resolver implements the resolve/has_permission/build_tree surface:
// frontier-based traversal with a visited set for cycle safety, a
// (user_id, resource_id) cache, and union-of-tokens merge semantics.
type Resolver struct {
	store     Store
	cache     *permCache
	secondary *cache.PermissionCache
	maxDepth  int
	rules     []PermissionRule
}

// NewResolver builds a Resolver over store with the given traversal depth
// cap (0 uses DefaultMaxDepth).
func NewResolver(store Store, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{store: store, cache: newPermCache(), maxDepth: maxDepth}
}

// SetSecondaryCache attaches a Redis-backed cache tier behind the
// process-local map: a miss here is checked there before falling through to
// a full traversal, and a traversal's result is written back to both tiers.
// Optional — a Resolver with no secondary cache behaves exactly as before.
func (r *Resolver) SetSecondaryCache(c *cache.PermissionCache) {
	r.secondary = c
}

// Resolve computes effective permissions for userID on (kind, resourceID),
// consulting the cache first: direct grants, then inherited grants from
// ancestors, merged into one effective token set.
func (r *Resolver) Resolve(ctx context.Context, userID string, kind ResourceKind, resourceID string) (ResolvedPermission, error) {
	start := time.Now()
	if cached, ok := r.cache.get(userID, resourceID); ok {
		metrics.Get().ResolveCacheHits.Inc()
		metrics.Get().ResolveDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return cached, nil
	}
	if r.secondary != nil {
		if cached, ok := r.secondary.Get(ctx, userID, resourceID); ok {
			resolved := ResolvedPermission{
				UserID:       cached.UserID,
				ResourceKind: ResourceKind(cached.ResourceKind),
				ResourceID:   cached.ResourceID,
				DirectTokens: cached.DirectTokens,
				Effective:    cached.Effective,
				Role:         Role(cached.Role),
			}
			r.cache.put(userID, resourceID, resolved)
			metrics.Get().ResolveCacheHits.Inc()
			metrics.Get().ResolveDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
			return resolved, nil
		}
	}
	metrics.Get().ResolveCacheMisses.Inc()
	defer func() { metrics.Get().ResolveDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds()) }()

	direct, err := r.store.DirectPermissions(ctx, kind, resourceID, userID)
	if err != nil {
		return ResolvedPermission{}, err
	}

	inherited, err := r.traverseInherited(ctx, userID, kind, resourceID)
	if err != nil {
		return ResolvedPermission{}, err
	}

	effective := mergeTokens(direct.Tokens, inherited)

	role := RoleViewer
	if direct.Present {
		role = direct.Role
	} else {
		for _, c := range inherited {
			role = higherRole(role, c.Role)
		}
	}

	resolved := ResolvedPermission{
		UserID:       userID,
		ResourceKind: kind,
		ResourceID:   resourceID,
		DirectTokens: direct.Tokens,
		Inherited:    inherited,
		Effective:    effective,
		Role:         role,
	}

	r.cache.put(userID, resourceID, resolved)
	if r.secondary != nil {
		_ = r.secondary.Set(ctx, cache.CachedResolvedPermission{
			UserID:       resolved.UserID,
			ResourceKind: string(resolved.ResourceKind),
			ResourceID:   resolved.ResourceID,
			DirectTokens: resolved.DirectTokens,
			Effective:    resolved.Effective,
			Role:         string(resolved.Role),
		})
	}
	return resolved, nil
}

// traverseInherited walks the ancestor frontier breadth-first, capped at
// maxDepth, defending cycles with a visited set.
func (r *Resolver) traverseInherited(ctx context.Context, userID string, kind ResourceKind, resourceID string) ([]InheritedContribution, error) {
	type node struct {
		id    string
		depth int
	}

	var inherited []InheritedContribution
	frontier := []node{{id: resourceID, depth: 0}}
	visited := map[string]struct{}{}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		if cur.depth > r.maxDepth {
			continue
		}
		if _, seen := visited[cur.id]; seen {
			continue
		}
		visited[cur.id] = struct{}{}

		parents, err := r.store.ParentsOf(ctx, kind, cur.id)
		if err != nil {
			return nil, err
		}

		for _, parentID := range parents {
			contribDepth := cur.depth + 1
			if contribDepth > r.maxDepth {
				continue
			}

			grant, err := r.store.DirectPermissions(ctx, kind, parentID, userID)
			if err != nil {
				return nil, err
			}
			if grant.Present && len(grant.Tokens) > 0 {
				inherited = append(inherited, InheritedContribution{
					SourceID: parentID,
					Depth:    contribDepth,
					Role:     grant.Role,
					Tokens:   grant.Tokens,
				})
			}

			// Enqueue the parent regardless of whether it carries a grant
			// itself: an ungranted intermediate node (e.g. P1..P5 in a chain
			// where only the root ancestor P6 holds a grant) must not cut
			// the traversal short.
			frontier = append(frontier, node{id: parentID, depth: contribDepth})
		}
	}

	return inherited, nil
}

func mergeTokens(direct []string, inherited []InheritedContribution) []string {
	seen := make(map[string]struct{}, len(direct))
	merged := make([]string, 0, len(direct))
	for _, t := range direct {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	for _, c := range inherited {
		for _, t := range c.Tokens {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				merged = append(merged, t)
			}
		}
	}
	sort.Strings(merged)
	return merged
}

// HasPermission is a thin wrapper on Resolve, and is what
// internal/session.AuthGate is satisfied with.
func (r *Resolver) HasPermission(userID, resourceID, token string) (bool, error) {
	resolved, err := r.Resolve(context.Background(), userID, KindProject, resourceID)
	if err != nil {
		return false, err
	}
	for _, t := range resolved.Effective {
		if t == token {
			return true, nil
		}
	}
	metrics.Get().AuthorizationDenied.WithLabelValues(token).Inc()
	return false, nil
}

// MeetsRole reports whether userID's resolved role on (kind, resourceID)
// meets or exceeds minRole in the total order.
func (r *Resolver) MeetsRole(ctx context.Context, userID string, kind ResourceKind, resourceID string, minRole Role) (bool, error) {
	resolved, err := r.Resolve(ctx, userID, kind, resourceID)
	if err != nil {
		return false, err
	}
	return resolved.Role.Level() >= minRole.Level(), nil
}

// ClearCache drops every cached resolution.
func (r *Resolver) ClearCache() {
	r.cache.clear()
}

// ClearCacheFor drops the single cached (userID, resourceID) resolution.
func (r *Resolver) ClearCacheFor(userID, resourceID string) {
	r.cache.clearFor(userID, resourceID)
}

// Invalidate is the hook the session manager and hierarchy writers MUST
// call on any direct-grant or edge change. It conservatively
// drops every cache entry for userID plus every descendant of resourceID.
func (r *Resolver) Invalidate(ctx context.Context, userID string, kind ResourceKind, resourceID string) {
	descendants := map[string]struct{}{resourceID: {}}
	r.collectDescendants(ctx, kind, resourceID, descendants, 0)
	r.cache.clearForUserOrDescendants(userID, descendants)
	if r.secondary != nil {
		_ = r.secondary.InvalidateUser(ctx, userID)
	}

	if err := r.store.Invalidate(ctx, kind, resourceID); err != nil {
		logging.L().Warn("hierarchy store invalidate failed", zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func (r *Resolver) collectDescendants(ctx context.Context, kind ResourceKind, id string, out map[string]struct{}, depth int) {
	if depth > r.maxDepth {
		return
	}
	children, err := r.store.ChildrenOf(ctx, kind, id)
	if err != nil {
		return
	}
	for _, child := range children {
		if _, seen := out[child]; seen {
			continue
		}
		out[child] = struct{}{}
		r.collectDescendants(ctx, kind, child, out, depth+1)
	}
}
