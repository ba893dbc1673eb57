package transport

// Capabilities describes what a broker guarantees for envelope delivery.
type Capabilities struct {
	Name string

	// SupportsOrdering reports in-order delivery within a partition or stream.
	SupportsOrdering bool

	// SupportsPartitioning reports that the broker routes by message key, so
	// every envelope for one correlation key lands on the same partition.
	SupportsPartitioning bool

	// SupportsAck and SupportsNack together mean a handler error leads to
	// redelivery rather than loss.
	SupportsAck  bool
	SupportsNack bool

	// MaxMessageSize in bytes; 0 means unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// PreservesKeyOrder reports whether envelopes sharing a correlation key are
// delivered to one worker in publish order.
func (c Capabilities) PreservesKeyOrder() bool {
	return c.SupportsOrdering && c.SupportsPartitioning
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
		SupportsPartitioning: true,
		SupportsAck:          true,
		SupportsNack:         true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1048576,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsAck:    true,
		SupportsNack:   true,
		MaxMessageSize: 262144,
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
