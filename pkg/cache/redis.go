package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/recallkit/recall/config"
)

// RedisCache shares contexts across instances through Redis. Generations
// live in Redis too, so an invalidation on one instance is seen by all.
type RedisCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

type redisEntry struct {
	Content  string `json:"content"`
	BuiltAt  int64  `json:"built_at"`
	UserID   string `json:"user_id"`
	Revision int64  `json:"generation"`
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return NewRedisCacheWithClient(client, cfg.KeyPrefix, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(c.prefix, userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached context for message.
func (c *RedisCache) Get(ctx context.Context, userID, message string) (string, int64, bool, error) {
	gen, err := c.generation(ctx, userID)
	if err != nil {
		return "", 0, false, fmt.Errorf("cache: read generation: %w", err)
	}
	data, err := c.client.Get(ctx, entryKey(c.prefix, userID, gen, message)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return "", gen, false, nil
	}
	if err != nil {
		return "", gen, false, fmt.Errorf("cache: get: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", gen, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	return entry.Content, gen, true, nil
}

// Set caches content under generation. Entries written for a generation
// that was bumped meanwhile land under a key no Get will read again.
func (c *RedisCache) Set(ctx context.Context, userID, message, content string, generation int64) error {
	current, err := c.generation(ctx, userID)
	if err != nil {
		return fmt.Errorf("cache: read generation: %w", err)
	}
	if current != generation {
		return nil
	}
	data, err := json.Marshal(redisEntry{
		Content:  content,
		BuiltAt:  time.Now().UnixMilli(),
		UserID:   userID,
		Revision: generation,
	})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	if err := c.client.Set(ctx, entryKey(c.prefix, userID, generation, message), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate bumps the user's generation.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Incr(ctx, generationKey(c.prefix, userID)).Err(); err != nil {
		return fmt.Errorf("cache: bump generation: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
