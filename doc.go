// Package quoteflow correlates asynchronous quote requests with their
// outcomes across a message broker. It is a small layer on top of Watermill.
//
// The producer side accepts currency conversion and weather requests over
// HTTP. A Registrar validates each request, mints a UUID correlation key and
// returns it right away. A background task then resolves the configured
// provider endpoint, calls it with exponential backoff, and publishes exactly
// one SUCCESS or ERROR envelope keyed by the correlation key.
//
// The consumer side registers a Dispatcher on the outcome topic. For every
// envelope it runs the observer hook, then exactly one of the success or
// error hooks. It finally upserts the outcome into an OutcomeStore, so
// redelivered envelopes never create a second record. Messages without a
// correlation key go to the poison queue; hook and store failures are
// retried by the middleware chain.
//
// # Transports
//
// The broker is selected by Config.PubSubSystem:
//   - channel: in-memory Go channels for tests and single-process setups
//   - kafka: partitioned by correlation key
//   - rabbitmq: AMQP durable queues
//   - aws: SNS/SQS with LocalStack support
//   - nats: NATS core messaging
//   - http: webhook style delivery
//
// # Stores
//
// OpenStore accepts "memory", "sqlite", "postgres" and "redis".
//
// # Middleware
//
// The default consumer chain logs messages, traces with OpenTelemetry,
// records Prometheus metrics, retries with exponential backoff, forwards
// unprocessable messages to the poison queue and recovers from panics.
package quoteflow
