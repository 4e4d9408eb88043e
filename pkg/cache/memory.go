package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps contexts in process memory.
type MemoryCache struct {
	items *gocache.Cache

	mu          sync.Mutex
	generations map[string]int64
}

// NewMemoryCache creates an in-process cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items:       gocache.New(ttl, ttl*2),
		generations: make(map[string]int64),
	}
}

func (c *MemoryCache) generation(userID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// Get returns the cached context for message.
func (c *MemoryCache) Get(ctx context.Context, userID, message string) (string, int64, bool, error) {
	gen := c.generation(userID)
	val, found := c.items.Get(entryKey("", userID, gen, message))
	if !found {
		return "", gen, false, nil
	}
	s, ok := val.(string)
	return s, gen, ok, nil
}

// Set caches content under generation. A write for a generation that has
// been invalidated since is dropped.
func (c *MemoryCache) Set(ctx context.Context, userID, message, content string, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != generation {
		return nil
	}
	c.items.Set(entryKey("", userID, generation, message), content, gocache.DefaultExpiration)
	return nil
}

// Invalidate bumps the user's generation. Old entries age out with the TTL.
func (c *MemoryCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.generations[userID]++
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int { return c.items.ItemCount() }

// Close flushes the cache.
func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
