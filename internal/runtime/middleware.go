package runtime

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	idspkg "github.com/drblury/querysub/internal/runtime/ids"
	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/schema"
)

const (
	metadataCorrelationID = middleware.CorrelationIDMetadataKey
	tracerName            = "github.com/drblury/querysub"
)

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware. Zero values fall
// back to the service configuration, then to defaults.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	return cfg
}

// IsSchemaError reports whether err means the message itself is malformed.
// Such messages are never retried.
func IsSchemaError(err error) bool {
	return errors.Is(err, schema.ErrInvalidMessage) || errors.Is(err, schema.ErrInvalidSchema)
}

// DefaultMiddlewares returns the standard chain, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		PoisonQueueMiddleware(nil),
		RetryMiddleware(RetryMiddlewareConfig{}),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware decorates the router with watermill's Prometheus
// metrics and serves them on the metrics port.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			builder := metrics.NewPrometheusMetricsBuilder(s.registerer, "querysub", s.Conf.PubSubSystem)
			builder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				handler := promhttp.Handler()
				if g, ok := s.registerer.(prometheus.Gatherer); ok && s.registerer != prometheus.DefaultRegisterer {
					handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
				}
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", handler)
			}
			return nil, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				if msg.Metadata.Get(metadataCorrelationID) == "" {
					msg.Metadata.Set(metadataCorrelationID, idspkg.CreateULID())
				}
				return h(msg)
			}
		},
	}
}

// LogMessagesMiddleware logs each raw result at debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					l.Debug("Processing message", loggingpkg.LogFields{
						"message_uuid": msg.UUID,
						"topic":        message.SubscribeTopicFromCtx(msg.Context()),
						"payload":      string(msg.Payload),
						"metadata":     msg.Metadata,
					})
					return h(msg)
				}
			}, nil
		},
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "tracer",
		Middleware: tracerMiddleware,
	}
}

func tracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "ProcessResult",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("messaging.destination.name", message.SubscribeTopicFromCtx(msg.Context())),
				attribute.String("querysub.handler", message.HandlerNameFromCtx(msg.Context())),
			),
		)
		defer span.End()
		msg.SetContext(ctx)

		msgs, err := h(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return msgs, err
	}
}

// RetryMiddleware retries failed handlers with exponential backoff. Schema
// errors are never retried.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return s.retryMiddleware(cfg), nil
		},
	}
}

func (s *Service) retryMiddleware(cfg RetryMiddlewareConfig) message.HandlerMiddleware {
	if s.Conf != nil {
		if cfg.MaxRetries == 0 {
			cfg.MaxRetries = s.Conf.RetryMaxRetries
		}
		if cfg.InitialInterval == 0 {
			cfg.InitialInterval = s.Conf.RetryInitialInterval
		}
		if cfg.MaxInterval == 0 {
			cfg.MaxInterval = s.Conf.RetryMaxInterval
		}
	}
	normalized := cfg.withDefaults()

	return middleware.Retry{
		MaxRetries:      normalized.MaxRetries,
		InitialInterval: normalized.InitialInterval,
		MaxInterval:     normalized.MaxInterval,
		Multiplier:      2,
		ShouldRetry: func(params middleware.RetryParams) bool {
			if IsSchemaError(params.Err) {
				return false
			}
			if normalized.RetryIf != nil {
				return normalized.RetryIf(params.Err)
			}
			return true
		},
	}.Middleware
}

// PoisonQueueMiddleware takes messages whose error matches filter off the
// stream. They go to the configured poison queue, or are logged and acked
// when none is configured. A nil filter matches schema errors.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			f := filter
			if f == nil {
				f = IsSchemaError
			}
			return s.poisonMiddleware(f)
		},
	}
}

func (s *Service) poisonMiddleware(filter func(error) bool) (message.HandlerMiddleware, error) {
	if s.Conf == nil {
		return nil, errspkg.ErrConfigRequired
	}

	var forward message.HandlerMiddleware
	if s.Conf.PoisonQueue != "" {
		if s.publisher == nil {
			return nil, errspkg.ErrPublisherRequired
		}
		mw, err := middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, filter)
		if err != nil {
			return nil, err
		}
		forward = mw
	}
	classify := s.getErrorClassifier()

	return func(h message.HandlerFunc) message.HandlerFunc {
		record := func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := h(msg)
			if err == nil || !filter(err) {
				return msgs, err
			}

			ctx := msg.Context()
			topic := message.SubscribeTopicFromCtx(ctx)
			handler := message.HandlerNameFromCtx(ctx)
			if s.poison != nil {
				s.poison.Record(topic, handler, classify(err), forward != nil, err)
			}
			if forward != nil {
				return msgs, err
			}
			s.Logger.Error("Dropping unprocessable result", err, loggingpkg.LogFields{
				"topic":        topic,
				"handler":      handler,
				"message_uuid": msg.UUID,
			})
			return nil, nil
		}
		if forward == nil {
			return record
		}
		return forward(record)
	}, nil
}

// RecovererMiddleware converts panics into handler errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}
