/*
Package runtime wires the quote correlation pipeline on top of Watermill.

# Producer

Registrar (registrar.go) is the intake boundary. Register accepts requests
built by the domain constructors, mints the correlation key, resolves the
source endpoint and hands the fetch to a bounded pool of background tasks. Each task runs the fetch.Fetcher and
publishes the resulting envelope through PublishEnvelope (publisher.go).

# Consumer

Dispatcher (dispatcher.go) turns an Inbound message into hook calls and one
store upsert. RegisterDispatcher (registration.go) binds it to a topic on the
Service router and tracks per-handler HandlerStats (stats.go).

# Service

Service (service.go) owns the broker transport, the router, its middleware
chain (middleware.go) and the HTTP servers for metrics and APIs. Pipeline
metrics live in metrics.go.

# Sub-packages

  - config/: configuration defaults, YAML and environment loading, validation
  - domain/: requests, quotes, failures and exact decimal arithmetic
  - endpoints/: source id to provider endpoint registry
  - envelope/: the SUCCESS/ERROR wire format
  - errors/: sentinel errors and typed failures
  - fetch/: provider calls with retry and failure classification
  - httpapi/: intake and outcome lookup HTTP routers
  - ids/: correlation keys and message ids
  - jsoncodec/: JSON encoding
  - logging/: logger interface and adapters
  - metadata/: message header helpers
  - store/: idempotent outcome stores
  - transport/: broker selection
*/
package runtime
