// Package cooldown throttles repeated operations per key: once a key is
// acquired it cannot be acquired again until its window passes or it is released.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter grants at most one acquisition per key per window.
type Limiter interface {
	// Acquire reports whether key was free; if so it is held for window.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release frees key early.
	Release(ctx context.Context, key string) error
}

// Redis is a Limiter shared by all replicas through SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis limiter with keys under "cooldown:".
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: "cooldown:"}
}

func (r *Redis) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, 1, window).Result()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

type clocker interface {
	Now() time.Time
}

// Memory is a process-local Limiter.
type Memory struct {
	clock clocker

	mu   sync.Mutex
	held map[string]time.Time
}

// NewMemory creates a Memory limiter.
func NewMemory(clock clocker) *Memory {
	return &Memory{clock: clock, held: make(map[string]time.Time)}
}

func (m *Memory) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.held[key]; ok && now.Before(until) {
		return false, nil
	}

	// sweep expired keys
	for k, until := range m.held {
		if !now.Before(until) {
			delete(m.held, k)
		}
	}

	m.held[key] = now.Add(window)
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}
