package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall/pkg/storage"
)

func setupTestStore(t *testing.T, cacheSize int) *EmbeddingStore {
	t.Helper()
	store, err := NewEmbeddingStore(&Config{
		Path:              t.TempDir(),
		SyncWrites:        false,   // Faster for tests
		ValueLogFileSize:  1 << 20, // 1MB
		NumVersionsToKeep: 1,
		CacheSize:         cacheSize,
	})
	require.NoError(t, err)
	return store
}

// TestBadgerEmbeddingStoreSuite runs the shared suite with and without the cache.
func TestBadgerEmbeddingStoreSuite(t *testing.T) {
	for name, size := range map[string]int{"uncached": 0, "cached": 8} {
		size := size
		t.Run(name, func(t *testing.T) {
			suite := &storage.EmbeddingStoreTestSuite{
				NewStore: func(t *testing.T) storage.EmbeddingStore {
					return setupTestStore(t, size)
				},
			}
			suite.RunAllTests(t)
		})
	}
}

func TestEmbeddingStore_CacheServesAndInvalidates(t *testing.T) {
	store := setupTestStore(t, 4)
	defer store.Close()
	ctx := context.Background()

	put := func(id string, v ...float32) {
		require.NoError(t, store.PutEmbeddings(ctx, []*storage.Embedding{{
			SourceType: storage.SourceMessage, SourceID: id, UserID: "u-1",
			Vector: v, CreatedAt: time.Now(),
		}}))
	}

	put("m-1", 1, 0)
	list, err := store.ListEmbeddings(ctx, "u-1", storage.SourceMessage)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = store.ListEmbeddings(ctx, "u-1", storage.SourceMessage)
	require.NoError(t, err)
	rate, total := store.CacheStats()
	assert.Equal(t, int64(2), total)
	assert.InDelta(t, 0.5, rate, 1e-9)

	put("m-2", 0, 1)
	list, err = store.ListEmbeddings(ctx, "u-1", storage.SourceMessage)
	require.NoError(t, err)
	assert.Len(t, list, 2, "put must invalidate the cached set")

	require.NoError(t, store.DeleteEmbeddings(ctx, "u-1", storage.SourceMessage, []string{"m-1"}))
	list, err = store.ListEmbeddings(ctx, "u-1", storage.SourceMessage)
	require.NoError(t, err)
	assert.Len(t, list, 1, "delete must invalidate the cached set")
}

func TestEmbeddingStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Path: dir, ValueLogFileSize: 1 << 20, NumVersionsToKeep: 1}
	ctx := context.Background()

	store, err := NewEmbeddingStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.PutEmbeddings(ctx, []*storage.Embedding{{
		SourceType: storage.SourceDistilled, SourceID: "e-1", UserID: "u:1",
		Model: "hash-384", Vector: []float32{0.5, 0.5}, CreatedAt: time.UnixMilli(1700000000000),
	}}))
	require.NoError(t, store.Close())

	store, err = NewEmbeddingStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	list, err := store.ListEmbeddings(ctx, "u:1", storage.SourceDistilled)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hash-384", list[0].Model)
	assert.Equal(t, []float32{0.5, 0.5}, list[0].Vector)
	assert.Equal(t, int64(1700000000000), list[0].CreatedAt.UnixMilli())
}

func TestVectorCache_Eviction(t *testing.T) {
	c := newVectorCache(2)
	c.put("a", storage.SourceMessage, nil)
	c.put("b", storage.SourceMessage, nil)
	_, _ = c.get("a", storage.SourceMessage)
	c.put("c", storage.SourceMessage, nil)

	assert.Equal(t, 2, c.len())
	_, ok := c.get("b", storage.SourceMessage)
	assert.False(t, ok, "least recently used set is evicted")
	_, ok = c.get("a", storage.SourceMessage)
	assert.True(t, ok)
}

func TestVectorCache_NilIsSafe(t *testing.T) {
	var c *vectorCache
	c.put("a", storage.SourceMessage, nil)
	c.invalidate("a", storage.SourceMessage)
	_, ok := c.get("a", storage.SourceMessage)
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestKeysDoNotOverlapAcrossUsers(t *testing.T) {
	assert.NotEqual(t, string(userPrefix("user-1")), string(userPrefix("user-10"))[:len(userPrefix("user-1"))])
	assert.Equal(t, "emb:u%3A1:message:m-1", string(embeddingKey("u:1", storage.SourceMessage, "m-1")))
}
