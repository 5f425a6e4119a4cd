package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Drivers accepted by New.
const (
	DriverMemory       = "memory"
	DriverNATS         = "nats"
	DriverNSQ          = "nsq"
	DriverKafka        = "kafka"
	DriverGooglePubSub = "google-pubsub"
)

// ErrUnknownDriver indicates an unsupported messaging driver.
var ErrUnknownDriver = errors.New("messaging: unknown driver")

// Options groups the per-driver configuration.
type Options struct {
	NATS   NATSConfig
	NSQ    NSQConfig
	Kafka  KafkaConfig
	PubSub PubSubConfig
}

// New builds the driver named by driver. An empty name selects memory.
func New(ctx context.Context, driver string, opts Options) (Messaging, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverNATS:
		return NewNATS(opts.NATS)
	case DriverNSQ:
		return NewNSQ(opts.NSQ)
	case DriverKafka:
		return NewKafka(opts.Kafka)
	case DriverGooglePubSub:
		return NewPubSub(ctx, opts.PubSub)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
