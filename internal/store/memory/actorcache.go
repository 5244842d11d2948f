// Package memory implements the federation core's store.ActorCache,
// store.ReachabilityStore, and store.OutgoingQueue interfaces without a
// database, for single-process deployments and tests. The actor cache
// uses ristretto for LRU-with-TTL eviction; reachability and the
// outgoing queue use plain mutex-guarded maps, following the locking
// style of the bridge's nostr relay and server packages.
package memory

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/klppl/apfed/internal/store"
)

// ActorCacheConfig bounds the ristretto cache backing ActorCache.
type ActorCacheConfig struct {
	// MaxCost is the maximum total cost (approximated as byte length of
	// cached actor JSON) the cache will hold before evicting.
	MaxCost int64
	// TTL is how long a cached actor stays valid before Get treats it as
	// a miss, per spec.md §5's "TTL" requirement.
	TTL time.Duration
}

// DefaultActorCacheConfig returns sane defaults: 32MiB budget, 1h TTL.
func DefaultActorCacheConfig() ActorCacheConfig {
	return ActorCacheConfig{MaxCost: 32 << 20, TTL: time.Hour}
}

// ActorCache is an in-memory, LRU-with-TTL actor/key cache implementing
// store.ActorCache.
type ActorCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewActorCache builds an ActorCache from cfg.
func NewActorCache(cfg ActorCacheConfig) (*ActorCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ActorCache{cache: c, ttl: cfg.TTL}, nil
}

var _ store.ActorCache = (*ActorCache)(nil)

// Get returns the cached actor for actorID, or ok=false on a miss or an
// entry whose TTL already expired.
func (c *ActorCache) Get(actorID string) (store.CachedActor, bool) {
	v, ok := c.cache.Get(actorID)
	if !ok {
		return store.CachedActor{}, false
	}
	cached := v.(store.CachedActor)
	if c.ttl > 0 && time.Since(cached.FetchedAt) > c.ttl {
		c.cache.Del(actorID)
		return store.CachedActor{}, false
	}
	return cached, true
}

// Put inserts or replaces the cached entry for actor.ActorID, costed by
// the size of its JSON document.
func (c *ActorCache) Put(actor store.CachedActor) error {
	cost := int64(len(actor.ActorJSON))
	if c.ttl > 0 {
		c.cache.SetWithTTL(actor.ActorID, actor, cost, c.ttl)
	} else {
		c.cache.Set(actor.ActorID, actor, cost)
	}
	c.cache.Wait()
	return nil
}

// Invalidate drops actorID from the cache immediately.
func (c *ActorCache) Invalidate(actorID string) error {
	c.cache.Del(actorID)
	return nil
}
