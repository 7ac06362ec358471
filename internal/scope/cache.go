package scope

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "sentra/pkg/domain"
)

// Cache stores resolved permissions for a short TTL. Role or tenant changes
// are propagated by invalidation from the identity service, so the TTL only
// bounds staleness when that signal is missed.
type Cache interface {
	Get(ctx context.Context, userID id.UserID) (Permissions, bool, error)
	Set(ctx context.Context, userID id.UserID, perms Permissions, ttl time.Duration) error
	Invalidate(ctx context.Context, userID id.UserID) error
}

type memoryCacheEntry struct {
	perms     Permissions
	expiresAt time.Time
}

// InMemoryCache backs tests and single-instance deployments.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[id.UserID]memoryCacheEntry
	now     func() time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[id.UserID]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, userID id.UserID) (Permissions, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok || c.now().After(entry.expiresAt) {
		return Permissions{}, false, nil
	}
	return entry.perms, true, nil
}

func (c *InMemoryCache) Set(_ context.Context, userID id.UserID, perms Permissions, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryCacheEntry{perms: perms, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, userID id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

// RedisCache shares resolved permissions across instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func cacheKey(userID id.UserID) string {
	return "audit:permissions:" + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID id.UserID) (Permissions, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Permissions{}, false, nil
	}
	if err != nil {
		return Permissions{}, false, err
	}
	var perms Permissions
	if err := json.Unmarshal(raw, &perms); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten.
		return Permissions{}, false, nil
	}
	return perms, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID id.UserID, perms Permissions, ttl time.Duration) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(userID), raw, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) error {
	return c.client.Del(ctx, cacheKey(userID)).Err()
}
