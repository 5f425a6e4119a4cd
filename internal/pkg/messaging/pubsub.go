package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"
)

// ErrPubSubProjectIDRequired is returned when no project id is configured.
var ErrPubSubProjectIDRequired = errors.New("messaging: pubsub project id is required")

// PubSubConfig configures the Google Pub/Sub driver.
type PubSubConfig struct {
	ProjectID     string
	ClientOptions []option.ClientOption
}

// PubSub is a Google Pub/Sub driver. Headers travel as attributes and the
// subscription name is the subscription id.
type PubSub struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	closed     bool
}

// NewPubSub creates the client.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	if cfg.ProjectID == "" {
		return nil, ErrPubSubProjectIDRequired
	}

	c, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("messaging: pubsub new client: %w", err)
	}
	return &PubSub{client: c, publishers: make(map[string]*pubsub.Publisher)}, nil
}

func (p *PubSub) publisher(topic string) (*pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	pub, ok := p.publishers[topic]
	if !ok {
		pub = p.client.Publisher(topic)
		p.publishers[topic] = pub
	}
	return pub, nil
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrTopicRequired
	}

	pub, err := p.publisher(topic)
	if err != nil {
		return err
	}

	if _, err := pub.Publish(ctx, &pubsub.Message{Data: msg.Body, Attributes: msg.Headers}).Get(ctx); err != nil {
		return fmt.Errorf("messaging: pubsub publish: %w", err)
	}
	return nil
}

func (p *PubSub) Subscribe(ctx context.Context, topic string, sub Subscription, h Handler) error {
	if err := validate(topic, h); err != nil {
		return err
	}
	if sub.Name == "" {
		return ErrSubscriptionRequired
	}

	s := p.client.Subscriber(sub.Name)
	s.ReceiveSettings.NumGoroutines = sub.workers()

	return s.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		err := dispatch(ctx, "pubsub", h, &Message{
			ID:          m.ID,
			Body:        m.Data,
			Headers:     m.Attributes,
			PublishedAt: m.PublishTime,
		})
		if err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
}

// Close stops publishers and the client.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pubs := p.publishers
	p.publishers = nil
	p.mu.Unlock()

	for _, pub := range pubs {
		pub.Stop()
	}
	return p.client.Close()
}
