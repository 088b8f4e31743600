package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// identityCache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path.
type identityCache struct {
	store sync.Map // map[string]*identityEntry
	ttl   time.Duration
}

type identityEntry struct {
	ident      *Identity
	expiresAt  time.Time
	refreshing atomic.Bool
}

type identityCacheResult struct {
	Ident        *Identity
	Hit          bool
	NeedsRefresh bool
}

func newIdentityCache(ttl time.Duration) *identityCache {
	return &identityCache{ttl: ttl}
}

// get performs a non-blocking lookup. A stale hit is still returned, with
// NeedsRefresh set for exactly one caller.
func (c *identityCache) get(apiKey string) identityCacheResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return identityCacheResult{}
	}

	entry := val.(*identityEntry)
	if time.Now().Before(entry.expiresAt) {
		return identityCacheResult{Ident: entry.ident, Hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return identityCacheResult{
		Ident:        entry.ident,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

func (c *identityCache) set(apiKey string, ident *Identity) {
	c.store.Store(apiKey, &identityEntry{
		ident:     ident,
		expiresAt: time.Now().Add(c.ttl),
	})
}
