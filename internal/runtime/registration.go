package runtime

import (
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/quoteflow/internal/runtime/envelope"
	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/metadata"
)

// DispatcherRegistration wires a Dispatcher to a topic.
type DispatcherRegistration struct {
	Name       string
	Topic      string
	Dispatcher *Dispatcher
	// Subscriber overrides the service subscriber.
	Subscriber message.Subscriber
}

// RegisterDispatcher consumes Topic and hands every message to the
// dispatcher. A returned error nacks the message; the middleware chain
// decides between retry, redelivery and the poison queue.
func RegisterDispatcher(svc *Service, cfg DispatcherRegistration) error {
	if svc == nil {
		return qerrors.ErrServiceRequired
	}
	if cfg.Dispatcher == nil {
		return qerrors.ErrDispatcherRequired
	}
	if cfg.Topic == "" {
		return qerrors.ErrConsumeTopicRequired
	}
	if cfg.Name == "" {
		return qerrors.ErrHandlerNameRequired
	}
	sub := cfg.Subscriber
	if sub == nil {
		sub = svc.subscriber
	}

	stats := newHandlerStats(cfg.Topic, svc.resources)
	svc.router.AddConsumerHandler(cfg.Name, cfg.Topic, sub, dispatchHandler(cfg.Dispatcher, cfg.Topic, stats))

	svc.handlersMu.Lock()
	svc.handlers = append(svc.handlers, HandlerInfo{Name: cfg.Name, Topic: cfg.Topic, Stats: stats})
	svc.handlersMu.Unlock()
	return nil
}

func dispatchHandler(d *Dispatcher, topic string, stats *HandlerStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		inv := stats.onMessageStart(msg)
		start := time.Now()
		err := d.Dispatch(msg.Context(), inboundFromMessage(msg, topic))
		stats.onMessageFinish(inv, time.Since(start), err)
		return err
	}
}

// inboundFromMessage extracts the key, envelope and broker position of msg.
// A value that is not an envelope becomes one with an empty type so the
// dispatcher treats it as a protocol error.
func inboundFromMessage(msg *message.Message, topic string) Inbound {
	env, err := envelope.Unmarshal(msg.Payload)
	if err != nil {
		env = envelope.Envelope{Message: string(msg.Payload)}
	}
	return Inbound{
		Key:      msg.Metadata.Get(metadata.KeyCorrelationKey),
		Envelope: env,
		Delivery: deliveryFromMessage(msg, topic),
	}
}

func deliveryFromMessage(msg *message.Message, topic string) Delivery {
	ctx := msg.Context()
	delivery := Delivery{Topic: topic, MessageUUID: msg.UUID}
	if subscribed := message.SubscribeTopicFromCtx(ctx); subscribed != "" {
		delivery.Topic = subscribed
	}
	if partition, ok := kafka.MessagePartitionFromCtx(ctx); ok {
		delivery.Partition = partition
	}
	if offset, ok := kafka.MessagePartitionOffsetFromCtx(ctx); ok {
		delivery.Offset = offset
	}
	return delivery
}
