package metadata

// Reserved header keys carried on every broker message.
const (
	// KeyCorrelationKey duplicates the broker partition key so transports
	// without native keys still deliver it to the dispatcher.
	KeyCorrelationKey = "correlation_key"
	// KeyEnvelopeType mirrors the envelope type for routing and debugging.
	KeyEnvelopeType = "envelope_type"
	// KeyRequestKind is "currency" or "weather".
	KeyRequestKind = "request_kind"
	// KeySource is the endpoint source id the request was resolved against.
	KeySource = "source"
	// KeyProducedAt is the RFC3339Nano time the envelope was published.
	KeyProducedAt = "produced_at"
	// KeyTopic is stamped by the consumer with the topic the message came from.
	KeyTopic = "received_topic"
)

// Metadata represents the headers carried alongside an envelope.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// CorrelationKey returns the correlation key header, if present.
func (m Metadata) CorrelationKey() string {
	return m[KeyCorrelationKey]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
