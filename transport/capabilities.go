package transport

// Capabilities describes the delivery guarantees of a transport backend.
type Capabilities struct {
	Name string `json:"name"`

	// SupportsOrdering indicates messages within a partition or stream are
	// delivered in order. Results for one subscription rely on it.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsAck indicates the transport supports explicit acknowledgment.
	SupportsAck bool `json:"supports_ack"`

	// SupportsNack indicates the transport redelivers negatively
	// acknowledged messages.
	SupportsNack bool `json:"supports_nack"`

	// SupportsNativeDLQ indicates the broker can dead-letter on its own.
	// Otherwise schema failures go to the configured poison topic.
	SupportsNativeDLQ bool `json:"supports_native_dlq"`

	SupportsTracing      bool `json:"supports_tracing"`
	SupportsPartitioning bool `json:"supports_partitioning"`

	// ConsumerGroups indicates replicas share the results stream through a
	// named group (kafka_consumer_group), so Build requires one.
	ConsumerGroups bool `json:"consumer_groups"`

	// InitialOffset indicates kafka_initial_offset decides where a new group
	// starts reading.
	InitialOffset bool `json:"initial_offset"`

	// MaxMessageSize is the maximum message size in bytes (0 = unknown).
	MaxMessageSize int64 `json:"max_message_size"`
}

// SupportsReliableDelivery returns true if the transport supports
// at-least-once delivery (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// RequiresPoisonTopic reports whether schema failures must be routed by the
// application.
func (c Capabilities) RequiresPoisonTopic() bool {
	return !c.SupportsNativeDLQ
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsAck:          true,
		SupportsPartitioning: true,
		ConsumerGroups:       true,
		InitialOffset:        true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsNativeDLQ: true,
		ConsumerGroups:    true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		ConsumerGroups:  true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsNativeDLQ: true,
		MaxMessageSize:    262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)

// GetCapabilities returns the capabilities registered for transportName in
// the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
