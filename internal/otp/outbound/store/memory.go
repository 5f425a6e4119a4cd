package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

// Memory keeps challenges in process memory. A restart discards them.
type Memory struct {
	clock clock.Clocker
	grace time.Duration

	mu    sync.RWMutex
	items map[string]entity.Challenge
}

func NewMemory(clk clock.Clocker, grace time.Duration) *Memory {
	if grace <= 0 {
		grace = ledger.DefaultRetentionGrace
	}

	return &Memory{
		clock: clk,
		grace: grace,
		items: make(map[string]entity.Challenge),
	}
}

func (m *Memory) Save(_ context.Context, c entity.Challenge) error {
	m.mu.Lock()
	m.items[c.Identity] = c
	m.mu.Unlock()

	return nil
}

func (m *Memory) Find(_ context.Context, identity string) (entity.Challenge, error) {
	m.mu.RLock()
	c, ok := m.items[identity]
	m.mu.RUnlock()

	if !ok || m.retired(c) {
		return entity.Challenge{}, ledger.ErrNotFound
	}

	return c, nil
}

func (m *Memory) Delete(_ context.Context, identity, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.items[identity]; ok && c.ID == id {
		delete(m.items, identity)
	}

	return nil
}

// Run sweeps retired challenges every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if n := m.sweep(); n > 0 {
				slog.DebugContext(ctx, "memory store swept", "removed", n, "remaining", m.Len())
			}
		}
	}
}

func (m *Memory) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, c := range m.items {
		if m.retired(c) {
			delete(m.items, k)
			n++
		}
	}

	return n
}

func (m *Memory) retired(c entity.Challenge) bool {
	return m.clock.Now().After(c.ExpiresAt.Add(m.grace))
}

// Len reports how many challenges are held, retired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}
