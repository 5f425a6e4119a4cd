package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

// ErrKafkaBrokersRequired is returned when no brokers are configured.
var ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")

const (
	kafkaIDHeader = "message-id"

	defaultKafkaHandlerAttempts  = 5
	defaultKafkaHandlerBaseDelay = 500 * time.Millisecond
	defaultKafkaHandlerMaxDelay  = 10 * time.Second
)

// KafkaConfig configures the Kafka driver. Zero handler values fall back to defaults.
type KafkaConfig struct {
	Brokers []string
	Dialer  *kafka.Dialer

	// HandlerAttempts is the total number of handler tries per message.
	HandlerAttempts  uint64
	HandlerBaseDelay time.Duration
	HandlerMaxDelay  time.Duration
}

// Kafka is a kafka-go driver. A failing handler is retried in place with a
// capped fibonacci backoff; once attempts run out the message is logged and
// committed so the partition keeps moving. Only fetch and commit failures end
// a subscription.
type Kafka struct {
	brokers []string
	dialer  *kafka.Dialer
	writer  *kafka.Writer

	attempts  uint64
	baseDelay time.Duration
	maxDelay  time.Duration

	mu      sync.Mutex
	readers []*kafka.Reader
	closed  bool
}

// NewKafka builds a driver with one shared writer. Topics are set per message.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	if cfg.Dialer != nil {
		w.Transport = &kafka.Transport{TLS: cfg.Dialer.TLS, SASL: cfg.Dialer.SASLMechanism}
	}

	k := &Kafka{
		brokers:   cfg.Brokers,
		dialer:    cfg.Dialer,
		writer:    w,
		attempts:  cfg.HandlerAttempts,
		baseDelay: cfg.HandlerBaseDelay,
		maxDelay:  cfg.HandlerMaxDelay,
	}
	if k.attempts == 0 {
		k.attempts = defaultKafkaHandlerAttempts
	}
	if k.baseDelay <= 0 {
		k.baseDelay = defaultKafkaHandlerBaseDelay
	}
	if k.maxDelay < k.baseDelay {
		k.maxDelay = max(defaultKafkaHandlerMaxDelay, k.baseDelay)
	}

	return k, nil
}

// Publish writes msg keyed by its ID so retries of one event share a partition.
func (k *Kafka) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrTopicRequired
	}

	km := kafka.Message{Topic: topic, Key: []byte(msg.ID), Value: msg.Body, Time: time.Now()}
	for key, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: key, Value: []byte(v)})
	}
	if msg.ID != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: kafkaIDHeader, Value: []byte(msg.ID)})
	}

	if err := k.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("messaging: kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, topic string, sub Subscription, h Handler) error {
	if err := validate(topic, h); err != nil {
		return err
	}
	if sub.Name == "" {
		return ErrSubscriptionRequired
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  sub.Name,
		Topic:    topic,
		MaxBytes: 10e6,
		Dialer:   k.dialer,
	})

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return errors.Join(ErrClosed, reader.Close())
	}
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	err := k.consume(ctx, topic, reader, h)
	cerr := reader.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(err, cerr)
}

// kafkaReader is the part of *kafka.Reader the consume loop needs.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consume handles one message at a time so commits stay in partition order.
func (k *Kafka) consume(ctx context.Context, topic string, reader kafkaReader, h Handler) error {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("messaging: kafka fetch: %w", err)
		}

		msg := &Message{Body: m.Value, PublishedAt: m.Time, Headers: make(map[string]string, len(m.Headers))}
		for _, hd := range m.Headers {
			msg.Headers[hd.Key] = string(hd.Value)
		}
		msg.ID = msg.Headers[kafkaIDHeader]

		if err := k.handle(ctx, h, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "kafka handler failed, skipping message",
				"topic", topic, "id", msg.ID, "partition", m.Partition, "offset", m.Offset, "error", err)
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("messaging: kafka commit: %w", err)
		}
	}
}

func (k *Kafka) handle(ctx context.Context, h Handler, msg *Message) error {
	b := retry.NewFibonacci(k.baseDelay)
	b = retry.WithCappedDuration(k.maxDelay, b)
	b = retry.WithMaxRetries(k.attempts-1, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := dispatch(ctx, "kafka", h, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Close closes readers and the writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	var err error
	for _, r := range readers {
		err = errors.Join(err, r.Close())
	}
	return errors.Join(err, k.writer.Close())
}
