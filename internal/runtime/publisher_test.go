package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/quoteflow/internal/runtime/domain"
	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/metadata"
	"github.com/drblury/quoteflow/transport/transporttest"
)

type publisherTestContextKey struct{}

func TestNewEnvelopeMessageCarriesRoutingMetadata(t *testing.T) {
	req := currencyRequest(t, "1")
	env := envelope.Encode(domain.Succeeded(currencyQuote(), 1))

	msg, err := NewEnvelopeMessage("key-1", req, env)
	require.NoError(t, err)

	assert.Len(t, msg.UUID, 26)
	assert.Equal(t, "key-1", msg.Metadata.Get(metadata.KeyCorrelationKey))
	assert.Equal(t, "SUCCESS", msg.Metadata.Get(metadata.KeyEnvelopeType))
	assert.Equal(t, "currency", msg.Metadata.Get(metadata.KeyRequestKind))
	assert.Equal(t, "1", msg.Metadata.Get(metadata.KeySource))
	_, err = time.Parse(time.RFC3339Nano, msg.Metadata.Get(metadata.KeyProducedAt))
	assert.NoError(t, err)

	decoded, err := envelope.Unmarshal(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestPublishEnvelopeValidations(t *testing.T) {
	req := currencyRequest(t, "1")
	env := envelope.Envelope{Type: envelope.TypeError, Message: "x"}

	err := PublishEnvelope(context.Background(), nil, "t", "k", req, env)
	assert.ErrorIs(t, err, qerrors.ErrPublisherRequired)

	err = PublishEnvelope(context.Background(), &transporttest.Publisher{}, "", "k", req, env)
	assert.ErrorIs(t, err, qerrors.ErrTopicRequired)
}

func TestPublishEnvelopeSetsContextAndTopic(t *testing.T) {
	pub := &transporttest.Publisher{}
	ctx := context.WithValue(context.Background(), publisherTestContextKey{}, "value")

	err := PublishEnvelope(ctx, pub, "quote-outcomes", "k", currencyRequest(t, "1"), envelope.Envelope{Type: envelope.TypeError, Message: "x"})
	require.NoError(t, err)

	msgs := pub.Messages("quote-outcomes")
	require.Len(t, msgs, 1)
	assert.Equal(t, "value", msgs[0].Context().Value(publisherTestContextKey{}))
}

func TestPublishEnvelopeReturnsPublisherError(t *testing.T) {
	boom := errors.New("broker down")
	err := PublishEnvelope(context.Background(), &transporttest.Publisher{Err: boom}, "t", "k", currencyRequest(t, "1"), envelope.Envelope{Type: envelope.TypeError})

	assert.ErrorIs(t, err, boom)
}
