package identity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cached struct {
	ref     Reference
	fetched time.Time
}

// CachingResolver memoizes successful lookups of an upstream Resolver for a
// fixed TTL. Concurrent misses for the same id share one upstream call.
// Failures are never cached.
type CachingResolver struct {
	upstream Resolver
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
}

// NewCachingResolver wraps upstream. now defaults to time.Now.
func NewCachingResolver(upstream Resolver, ttl time.Duration, now func() time.Time) *CachingResolver {
	if now == nil {
		now = time.Now
	}
	return &CachingResolver{
		upstream: upstream,
		ttl:      ttl,
		now:      now,
		cache:    make(map[string]cached),
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, id string) (Reference, error) {
	c.mu.RLock()
	hit, ok := c.cache[id]
	c.mu.RUnlock()
	if ok && c.now().Sub(hit.fetched) < c.ttl {
		return hit.ref, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		ref, err := c.upstream.Resolve(ctx, id)
		if err != nil {
			return Reference{}, err
		}
		c.mu.Lock()
		c.cache[id] = cached{ref: ref, fetched: c.now()}
		c.mu.Unlock()
		return ref, nil
	})
	if err != nil {
		return Reference{}, err
	}
	return v.(Reference), nil
}

// Invalidate drops id from the cache.
func (c *CachingResolver) Invalidate(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

// Clear drops every cached entry.
func (c *CachingResolver) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]cached)
	c.mu.Unlock()
}
