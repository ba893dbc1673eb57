// Package transports imports every built-in broker so each registers itself
// with the default transport registry.
package transports

import (
	_ "github.com/drblury/quoteflow/transport/aws"
	_ "github.com/drblury/quoteflow/transport/channel"
	_ "github.com/drblury/quoteflow/transport/http"
	_ "github.com/drblury/quoteflow/transport/kafka"
	_ "github.com/drblury/quoteflow/transport/nats"
	_ "github.com/drblury/quoteflow/transport/rabbitmq"
)
