package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/quoteflow/transport"
	"github.com/drblury/quoteflow/transport/transporttest"
)

func stubFactories(t *testing.T) {
	t.Helper()
	loader, resolver, pub, sub := DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory = loader, resolver, pub, sub
	})

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &transporttest.Publisher{}, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return transporttest.Subscriber{}, nil
	}
}

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.True(t, caps.SupportsReliableDelivery())
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("wires publisher and subscriber", func(t *testing.T) {
		stubFactories(t)

		var gotAccount, gotRegion string
		TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
			gotAccount, gotRegion = accountID, region
			return &sns.GenerateArnTopicResolver{}, nil
		}
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.NotNil(t, cfg.GenerateSqsQueueName)
			assert.Len(t, sqsCfg.OptFns, 1)
			return transporttest.Subscriber{}, nil
		}

		cfg := &transporttest.Config{
			AWSRegion:    "eu-central-1",
			AWSAccountID: "123456789012",
			AWSEndpoint:  "http://localhost:4566",
		}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.NotNil(t, tr.Subscriber)
		assert.Equal(t, "123456789012", gotAccount)
		assert.Equal(t, "eu-central-1", gotRegion)
	})

	t.Run("config loader failure", func(t *testing.T) {
		stubFactories(t)
		DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("config error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "config error")
	})

	t.Run("publisher failure", func(t *testing.T) {
		stubFactories(t)
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber failure", func(t *testing.T) {
		stubFactories(t)
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
	})

	t.Run("bad endpoint", func(t *testing.T) {
		stubFactories(t)

		_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "://nope"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "parse AWS endpoint")
	})
}

func TestResolveAccountAndRegion(t *testing.T) {
	log := watermill.NopLogger{}

	account, region := resolveAccountAndRegion(&transporttest.Config{AWSAccountID: "123456789012", AWSRegion: "us-west-2"}, log, "us-east-1")
	assert.Equal(t, "123456789012", account)
	assert.Equal(t, "us-west-2", region)

	_, region = resolveAccountAndRegion(&transporttest.Config{AWSAccountID: "123456789012"}, log, "us-east-1")
	assert.Equal(t, "us-east-1", region)

	account, _ = resolveAccountAndRegion(&transporttest.Config{AWSEndpoint: "http://localhost:4566"}, log, "us-east-1")
	assert.Equal(t, localstackAccountID, account)

	account, _ = resolveAccountAndRegion(&transporttest.Config{AWSEndpoint: "http://localhost:4566", AWSAccountID: "short"}, log, "")
	assert.Equal(t, localstackAccountID, account)

	account, region = resolveAccountAndRegion(nil, log, "us-east-1")
	assert.Empty(t, account)
	assert.Equal(t, "us-east-1", region)
}

func TestQueueNameGenerator(t *testing.T) {
	arn := sns.TopicArn("arn:aws:sns:us-east-1:000000000000:quote-outcomes")

	name, err := queueNameGenerator("")(context.Background(), arn)
	require.NoError(t, err)
	assert.Equal(t, "quote-outcomes", name)

	name, err = queueNameGenerator("consumers")(context.Background(), arn)
	require.NoError(t, err)
	assert.Equal(t, "quote-outcomes-consumers", name)
}

func TestEndpointURL(t *testing.T) {
	u, err := endpointURL(nil)
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = endpointURL(&transporttest.Config{AWSEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)

	snsOpts, sqsOpts := endpointOverrides(u)
	assert.Len(t, snsOpts, 1)
	assert.Len(t, sqsOpts, 1)
}
