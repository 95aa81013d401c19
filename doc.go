// Package querysub consumes the result stream of query subscriptions and
// hands every result to the subscriber registered for the subscription's
// type. It is a thin layer on top of Watermill: Config selects the broker
// (Kafka, RabbitMQ, NATS, AWS SQS, HTTP or Go channels), Service builds the
// router and RegisterResultsConsumer attaches one handler per results topic.
//
// Each message is a versioned JSON envelope. The consumer validates it,
// resolves the subscription through a Resolver and dispatches the
// normalised payload to the matching Subscriber. Results for subscriptions
// that no longer exist trigger a best-effort delete request against the
// query engine so it stops producing them.
//
// # Middleware
//
// The default chain adds correlation IDs, structured logging, OpenTelemetry
// tracing, Prometheus metrics, poison queue forwarding for malformed
// results, retries with exponential backoff for everything else, and panic
// recovery. MessageHooks observe each message around the handler.
//
// # HTTP
//
// When enabled the service serves /metrics on the metrics port and the
// handler and poison introspection endpoints on the API port. Additional
// routes, such as the replay count endpoint, are mounted with
// Service.RegisterAPIRoutes.
package querysub
