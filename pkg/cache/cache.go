// Package cache stores built memory contexts. Entries are keyed by user,
// the user's generation and a hash of the message; bumping the generation
// makes every earlier entry of the user unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/recallkit/recall/config"
)

// Cache is a context cache with per-user invalidation.
type Cache interface {
	// Get looks message up under the user's current generation and returns
	// that generation with the result, hit or miss.
	Get(ctx context.Context, userID, message string) (content string, generation int64, found bool, err error)

	// Set stores content under the generation returned by the Get that
	// preceded the build, never under a newer one.
	Set(ctx context.Context, userID, message, content string, generation int64) error

	Invalidate(ctx context.Context, userID string) error
	Close() error
}

const defaultTTL = 5 * time.Minute

// entryKey derives the key of a cached context.
func entryKey(prefix, userID string, generation int64, message string) string {
	sum := sha256.Sum256([]byte(message))
	return fmt.Sprintf("%sctx:%s:%d:%s", prefix, userID, generation, hex.EncodeToString(sum[:]))
}

func generationKey(prefix, userID string) string {
	return prefix + "gen:" + userID
}

// New creates the configured cache. It returns nil for type "none".
func New(cfg config.CacheConfig) (Cache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(ttl), nil
	case "redis":
		return NewRedisCache(cfg.Redis, ttl)
	default:
		return nil, fmt.Errorf("cache: unknown type %q", cfg.Type)
	}
}
