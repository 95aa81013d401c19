// Package transport defines the broker abstraction the result consumer reads
// from. Each broker lives in its own sub-package and registers a Builder with
// the transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
// The subscriber reads results topics; the publisher feeds the poison queue.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports without
// depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport name.
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string
	GetKafkaInitialOffset() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
