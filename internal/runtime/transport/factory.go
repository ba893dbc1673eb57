// Package transport builds the broker connection a Service runs on.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/quoteflow/internal/runtime/config"
	brokers "github.com/drblury/quoteflow/transport"

	_ "github.com/drblury/quoteflow/transport/transports"
)

// Transport is the publisher/subscriber pair plus what the broker guarantees.
type Transport struct {
	brokers.Transport
	Capabilities brokers.Capabilities
}

// Factory abstracts how a Service initialises its broker.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports from the registry populated by the
// built-in broker packages.
func DefaultFactory() Factory {
	return registryFactory{registry: brokers.DefaultRegistry}
}

type registryFactory struct {
	registry *brokers.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	t, err := f.registry.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Transport:    t,
		Capabilities: f.registry.GetCapabilities(conf.PubSubSystem),
	}, nil
}
