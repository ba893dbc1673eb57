package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct {
	pubSubSystem string
}

func (m *stubConfig) GetPubSubSystem() string       { return m.pubSubSystem }
func (m *stubConfig) GetKafkaBrokers() []string     { return nil }
func (m *stubConfig) GetKafkaClientID() string      { return "" }
func (m *stubConfig) GetKafkaConsumerGroup() string { return "" }
func (m *stubConfig) GetRabbitMQURL() string        { return "" }
func (m *stubConfig) GetNATSURL() string            { return "" }
func (m *stubConfig) GetHTTPServerAddress() string  { return "" }
func (m *stubConfig) GetHTTPPublisherURL() string   { return "" }
func (m *stubConfig) GetAWSRegion() string          { return "" }
func (m *stubConfig) GetAWSAccountID() string       { return "" }
func (m *stubConfig) GetAWSAccessKeyID() string     { return "" }
func (m *stubConfig) GetAWSSecretAccessKey() string { return "" }
func (m *stubConfig) GetAWSEndpoint() string        { return "" }

type stubPublisher struct{ closeErr error }

func (m *stubPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *stubPublisher) Close() error                                            { return m.closeErr }

type stubSubscriber struct{ closeErr error }

func (m *stubSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *stubSubscriber) Close() error { return m.closeErr }

func okBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return Transport{Publisher: &stubPublisher{}, Subscriber: &stubSubscriber{}}, nil
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	reg.Register("test-transport", okBuilder)
	assert.True(t, reg.Has("test-transport"))
	assert.False(t, reg.Has("other"))

	tr, err := reg.Build(context.Background(), &stubConfig{pubSubSystem: "test-transport"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("builder error")
	reg.Register("failing", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	})

	_, err := reg.Build(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = reg.Build(context.Background(), &stubConfig{pubSubSystem: "missing"}, nil)
	assert.ErrorContains(t, err, "unknown transport")

	_, err = reg.Build(context.Background(), &stubConfig{pubSubSystem: "failing"}, nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "build failing transport")
}

func TestRegistryCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("kafka", okBuilder, KafkaCapabilities)

	assert.True(t, reg.GetCapabilities("kafka").PreservesKeyOrder())
	unknown := reg.GetCapabilities("unknown")
	assert.Equal(t, "unknown", unknown.Name)
	assert.False(t, unknown.PreservesKeyOrder())
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("nats", okBuilder)
	reg.Register("aws", okBuilder)
	reg.Register("kafka", okBuilder)

	assert.Equal(t, []string{"aws", "kafka", "nats"}, reg.Names())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register("transport", okBuilder)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
		}()
	}
	wg.Wait()

	assert.True(t, reg.Has("transport"))
}

func TestPackageLevelRegistration(t *testing.T) {
	RegisterWithCapabilities("test-pkg-transport", okBuilder, Capabilities{Name: "test-pkg-transport", SupportsAck: true})

	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
	assert.True(t, GetCapabilities("test-pkg-transport").SupportsAck)

	_, err := Build(context.Background(), &stubConfig{pubSubSystem: "nonexistent"}, nil)
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	assert.True(t, KafkaCapabilities.PreservesKeyOrder())
	assert.True(t, KafkaCapabilities.SupportsReliableDelivery())
	assert.False(t, ChannelCapabilities.PreservesKeyOrder())
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())
}

func TestTransportClose(t *testing.T) {
	pubErr := errors.New("pub")
	subErr := errors.New("sub")

	assert.NoError(t, Transport{}.Close())
	assert.Equal(t, subErr, Transport{Publisher: &stubPublisher{}, Subscriber: &stubSubscriber{closeErr: subErr}}.Close())
	assert.Equal(t, pubErr, Transport{Publisher: &stubPublisher{closeErr: pubErr}, Subscriber: &stubSubscriber{closeErr: subErr}}.Close())
}
