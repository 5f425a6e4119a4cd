// Package messaging publishes and consumes events over a pluggable broker:
// an in-process bus, NATS, NSQ, Kafka or Google Pub/Sub.
//
// Delivery is at-least-once where the broker supports redelivery. A handler
// returning nil acknowledges the message; an error asks for redelivery, which
// Kafka performs in place with a bounded retry.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

var (
	// ErrTopicRequired is returned when publishing or subscribing without a topic.
	ErrTopicRequired = errors.New("messaging: topic is required")
	// ErrSubscriptionRequired is returned when the broker needs a subscription name.
	ErrSubscriptionRequired = errors.New("messaging: subscription name is required")
	// ErrHandlerRequired is returned when Subscribe gets a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("messaging: client is closed")
)

// Messaging publishes to and consumes from topics.
type Messaging interface {
	io.Closer
	Publisher
	// Subscribe blocks, feeding messages of topic to h, until ctx is done or
	// the client is closed.
	Subscribe(ctx context.Context, topic string, sub Subscription, h Handler) error
}

// Publisher is the publish half, handy for outbound adapters.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Message is a broker-agnostic event.
type Message struct {
	ID          string
	Body        []byte
	Headers     map[string]string
	PublishedAt time.Time
}

// Header returns the value of a header, or "".
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// Handler processes one message.
type Handler func(ctx context.Context, msg *Message) error

// Subscription names the consumer. Name maps to the Kafka consumer group, the
// NSQ channel, the NATS queue group and the Pub/Sub subscription id.
type Subscription struct {
	Name        string
	Concurrency int
}

func (s Subscription) workers() int {
	if s.Concurrency < 1 {
		return 1
	}
	return s.Concurrency
}

func validate(topic string, h Handler) error {
	if topic == "" {
		return ErrTopicRequired
	}
	if h == nil {
		return ErrHandlerRequired
	}
	return nil
}

// dispatch runs h and turns a panic into an error.
func dispatch(ctx context.Context, driver string, h Handler, msg *Message) (err error) {
	defer func() {
		rvr := recover()
		if rvr == nil {
			return
		}
		stack := debug.Stack()
		if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
			slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", paths)
		} else {
			slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", string(stack))
		}
		err = fmt.Errorf("messaging: panic in %s handler: %v", driver, rvr)
	}()

	return h(ctx, msg)
}
