/*
Package runtime hosts the subscription result consumer on a Watermill router.

A Service builds the configured transport, installs the middleware chain and
registers one no-publish handler per results topic:

	svc, err := runtime.TryNewService(&conf, log, ctx, runtime.ServiceDependencies{
		Subscribers: subscribers,
	})
	if err != nil {
		return err
	}
	if err := runtime.RegisterResultsConsumer(svc, runtime.ResultsConsumerRegistration{
		Consumer: c,
	}); err != nil {
		return err
	}
	return svc.Start(ctx)

# Middleware

DefaultMiddlewares returns, outermost first: correlation id, debug message
log, OpenTelemetry tracer, Prometheus router metrics, poison queue, retry and
panic recovery. Envelope and schema errors skip the retry layer and end at the
poison queue: they are published to Config.PoisonQueue when set, otherwise
logged and acknowledged. Every other error is retried with exponential backoff
and then nacked.

# HTTP

When metrics are enabled /metrics is served on Config.MetricsPort. The API
port serves /api/handlers (per-handler stats, registered subscription types
and transport capabilities), /api/poison, and any routes added through
RegisterAPIRoutes such as the replay count endpoint.
*/
package runtime
