// Package transports imports every built-in transport for registration.
package transports

import (
	_ "github.com/drblury/querysub/transport/aws"
	_ "github.com/drblury/querysub/transport/channel"
	_ "github.com/drblury/querysub/transport/http"
	_ "github.com/drblury/querysub/transport/kafka"
	_ "github.com/drblury/querysub/transport/nats"
	_ "github.com/drblury/querysub/transport/rabbitmq"
)
