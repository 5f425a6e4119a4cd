package messaging

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const memoryBuffer = 256

// Memory is an in-process bus. Every subscription name on a topic receives
// each message once; workers of the same name compete. Failed messages are
// logged and dropped.
type Memory struct {
	closed atomic.Bool
	seq    atomic.Uint64
	done   chan struct{}

	mu     sync.RWMutex
	queues map[string]map[string]chan *Message
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{done: make(chan struct{}), queues: make(map[string]map[string]chan *Message)}
}

func (m *Memory) queue(topic, name string) chan *Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.queues[topic]
	if !ok {
		subs = make(map[string]chan *Message)
		m.queues[topic] = subs
	}
	q, ok := subs[name]
	if !ok {
		q = make(chan *Message, memoryBuffer)
		subs[name] = q
	}
	return q
}

// Publish copies msg to every subscription of topic. Messages published
// before the first Subscribe on a topic are dropped.
func (m *Memory) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrTopicRequired
	}
	if m.closed.Load() {
		return ErrClosed
	}

	if msg.ID == "" {
		msg.ID = strconv.FormatUint(m.seq.Inc(), 10)
	}
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.queues[topic]
	if len(subs) == 0 {
		slog.WarnContext(ctx, "memory bus has no subscribers, message dropped", "topic", topic, "id", msg.ID)
		return nil
	}

	for _, q := range subs {
		cp := msg
		cp.Headers = maps.Clone(msg.Headers)
		select {
		case q <- &cp:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string, sub Subscription, h Handler) error {
	if err := validate(topic, h); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrClosed
	}

	q := m.queue(topic, sub.Name)

	var wg sync.WaitGroup
	for range sub.workers() {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case msg := <-q:
					if err := dispatch(ctx, "memory", h, msg); err != nil {
						slog.WarnContext(ctx, "memory bus dropped failed message", "topic", topic, "id", msg.ID, "error", err)
					}
				}
			}
		})
	}
	wg.Wait()

	if m.closed.Load() {
		return nil
	}
	return ctx.Err()
}

// Close stops all subscribers.
func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		close(m.done)
	}
	return nil
}
