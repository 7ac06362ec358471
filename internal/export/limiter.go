package export

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore counts export requests per user inside a rolling window. The
// counter is incremented before the limit check, so under races the limiter
// over-counts and rejects rather than admits.
type CounterStore interface {
	// IncrWindow increments the user's counter for the window and returns the
	// new value. The first increment arms the window's expiry.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// InMemoryCounterStore backs tests and single-instance deployments.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		windows: make(map[string]memoryWindow),
		now:     time.Now,
	}
}

func (c *InMemoryCounterStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[key]
	if !ok || c.now().After(w.resetAt) {
		w = memoryWindow{resetAt: c.now().Add(window)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

// RedisCounterStore shares the window across instances via INCR + EXPIRE.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (c *RedisCounterStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// Arm the expiry only on the first increment so the window is fixed
		// from the first request, not sliding.
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
