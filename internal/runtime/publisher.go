package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/ids"
	"github.com/drblury/quoteflow/internal/runtime/metadata"
)

// NewEnvelopeMessage converts an envelope into a Watermill message carrying
// the correlation key and routing metadata. The Kafka transport uses the
// correlation_key header as the partition key.
func NewEnvelopeMessage(key string, req domain.Request, env envelope.Envelope) (*message.Message, error) {
	payload, err := envelope.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	md := metadata.New(
		metadata.KeyCorrelationKey, key,
		metadata.KeyEnvelopeType, string(env.Type),
		metadata.KeyRequestKind, string(req.Kind()),
		metadata.KeySource, req.Source(),
		metadata.KeyProducedAt, time.Now().UTC().Format(time.RFC3339Nano),
	)

	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata = metadata.ToWatermill(md)
	return msg, nil
}

// PublishEnvelope marshals env and publishes it to topic.
func PublishEnvelope(ctx context.Context, publisher message.Publisher, topic, key string, req domain.Request, env envelope.Envelope) error {
	if publisher == nil {
		return qerrors.ErrPublisherRequired
	}
	if topic == "" {
		return qerrors.ErrTopicRequired
	}

	msg, err := NewEnvelopeMessage(key, req, env)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}
