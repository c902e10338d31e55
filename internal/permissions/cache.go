package permissions

import "sync"

// cacheKey is the (user_id, resource_id) tuple a resolution is keyed by.
type cacheKey struct {
	userID     string
	resourceID string
}

// permCache is a concurrent map guarding short critical sections only — a
// miss performs traversal without holding the map lock, so concurrent
// resolutions for different keys never block each other.
type permCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]ResolvedPermission
}

func newPermCache() *permCache {
	return &permCache{entries: make(map[cacheKey]ResolvedPermission)}
}

func (c *permCache) get(userID, resourceID string) (ResolvedPermission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[cacheKey{userID, resourceID}]
	return v, ok
}

func (c *permCache) put(userID, resourceID string, v ResolvedPermission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{userID, resourceID}] = v
}

// clear drops every cache entry.
func (c *permCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]ResolvedPermission)
}

// clearFor drops the single (userID, resourceID) entry.
func (c *permCache) clearFor(userID, resourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{userID, resourceID})
}

// clearForUserOrDescendants is the conservative invalidation strategy:
// drop every entry for userID, or for any resource in descendantIDs
// regardless of which user holds it.
func (c *permCache) clearForUserOrDescendants(userID string, descendantIDs map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
			continue
		}
		if _, ok := descendantIDs[key.resourceID]; ok {
			delete(c.entries, key)
		}
	}
}
