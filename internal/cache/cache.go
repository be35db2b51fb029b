// Package cache is a process-local TTL cache for upstream responses that
// change rarely (session lists, popular questions, document details).
package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL applies when a Cache is built with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Cache wraps go-cache with typed loaders.
type Cache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// New returns a Cache whose entries live for ttl unless set otherwise.
// Expired entries are purged every 2*ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{c: gocache.New(ttl, 2*ttl), ttl: ttl}
}

// Get returns the unexpired value under key.
func (c *Cache) Get(key string) (any, bool) { return c.c.Get(key) }

// Set stores v under key. ttl <= 0 uses the cache default.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.c.Set(key, v, ttl)
}

// Delete drops key.
func (c *Cache) Delete(key string) { c.c.Delete(key) }

// DeletePrefix drops every key starting with prefix.
func (c *Cache) DeletePrefix(prefix string) {
	for k := range c.c.Items() {
		if strings.HasPrefix(k, prefix) {
			c.c.Delete(k)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() { c.c.Flush() }

// Len counts stored entries, including expired ones not yet purged.
func (c *Cache) Len() int { return c.c.ItemCount() }

// GetOrLoad returns the cached T under key, or calls load and caches its
// result for ttl. Load errors are not cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
