package badger

import (
	"container/list"
	"sync"

	"github.com/recallkit/recall/pkg/storage"
)

// vectorCache is an LRU of per-user vector sets. A nil cache misses on
// every lookup.
type vectorCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	hits     int64
	misses   int64
}

type cacheItem struct {
	key  string
	embs []*storage.Embedding
}

func newVectorCache(maxSize int) *vectorCache {
	return &vectorCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

func cacheKey(userID string, st storage.SourceType) string {
	return string(st) + "\x00" + userID
}

// get returns a shallow copy of the cached set so callers may reorder it.
func (c *vectorCache) get(userID string, st storage.SourceType) ([]*storage.Embedding, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[cacheKey(userID, st)]; ok {
		c.eviction.MoveToFront(elem)
		c.hits++
		embs := elem.Value.(*cacheItem).embs
		return append([]*storage.Embedding(nil), embs...), true
	}
	c.misses++
	return nil, false
}

func (c *vectorCache) put(userID string, st storage.SourceType, embs []*storage.Embedding) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(userID, st)
	embs = append([]*storage.Embedding(nil), embs...)
	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*cacheItem).embs = embs
		return
	}
	if c.eviction.Len() >= c.maxSize {
		if back := c.eviction.Back(); back != nil {
			c.eviction.Remove(back)
			delete(c.items, back.Value.(*cacheItem).key)
		}
	}
	c.items[key] = c.eviction.PushFront(&cacheItem{key: key, embs: embs})
}

func (c *vectorCache) invalidate(userID string, st storage.SourceType) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[cacheKey(userID, st)]; ok {
		c.eviction.Remove(elem)
		delete(c.items, elem.Value.(*cacheItem).key)
	}
}

func (c *vectorCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *vectorCache) hitRate() (rate float64, total int64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total = c.hits + c.misses
	if total == 0 {
		return 0, 0
	}
	return float64(c.hits) / float64(total), total
}
