package querysub

import (
	runtimepkg "github.com/drblury/querysub/internal/runtime"
	configpkg "github.com/drblury/querysub/internal/runtime/config"
	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	idspkg "github.com/drblury/querysub/internal/runtime/ids"
	jsoncodec "github.com/drblury/querysub/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/cleanup"
	"github.com/drblury/querysub/internal/subscription/consumer"
	"github.com/drblury/querysub/internal/subscription/dataset"
	"github.com/drblury/querysub/internal/subscription/registry"
	"github.com/drblury/querysub/internal/subscription/schema"
	"github.com/drblury/querysub/internal/subscription/store"
	"github.com/drblury/querysub/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	MessageHandlerRegistration  = runtimepkg.MessageHandlerRegistration
	ResultsConsumerRegistration = runtimepkg.ResultsConsumerRegistration

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerInfo           = runtimepkg.HandlerInfo
	HandlerStats          = runtimepkg.HandlerStats
	StatsSnapshot         = runtimepkg.StatsSnapshot
	ConfigValidationError = errspkg.ConfigValidationError

	// Message lifecycle hooks
	MessageContext = runtimepkg.MessageContext
	MessageHooks   = runtimepkg.MessageHooks

	// Poison metrics
	PoisonMetrics      = runtimepkg.PoisonMetrics
	PoisonTopicMetrics = runtimepkg.PoisonTopicMetrics
	PoisonSnapshot     = runtimepkg.PoisonSnapshot

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Transports
	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities

	// Subscription results
	Payload              = schema.Payload
	DispatchPayload      = schema.DispatchPayload
	Row                  = schema.Row
	Subscription         = store.Subscription
	SubscriptionStore    = store.Store
	Resolver             = store.Resolver
	Subscriber           = registry.Handler
	SubscriberFunc       = registry.HandlerFunc
	SubscriberRegistry   = registry.Registry
	Consumer             = consumer.Consumer
	ConsumerDependencies = consumer.Dependencies
	Dataset              = dataset.Dataset
	EntityKey            = dataset.EntityKey
	CleanupConfig        = cleanup.Config
	CleanupDispatcher    = cleanup.Dispatcher
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	DefaultConfig  = configpkg.Default
	LoadConfigFile = configpkg.LoadFile
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	RegisterMessageHandler  = runtimepkg.RegisterMessageHandler
	RegisterResultsConsumer = runtimepkg.RegisterResultsConsumer

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	HooksMiddleware = runtimepkg.HooksMiddleware
	LoggingHooks    = runtimepkg.LoggingHooks

	NewPoisonMetrics       = runtimepkg.NewPoisonMetrics
	DefaultErrorClassifier = runtimepkg.DefaultErrorClassifier
	IsSchemaError          = runtimepkg.IsSchemaError

	// Transport registry. Import the transports you need, or all of them via
	// _ "github.com/drblury/querysub/transport/transports".
	DefaultTransportRegistry = transport.DefaultRegistry
	NewTransportRegistry     = transport.NewRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	// Subscription results
	ParseResult           = schema.Parse
	NewConsumer           = consumer.New
	NewSubscriberRegistry = registry.New
	RegisterSubscriber    = registry.RegisterSubscriber
	NewMemoryStore        = store.NewMemoryStore
	TryNewMemoryStore     = store.TryNewMemoryStore
	NewCleanupDispatcher  = cleanup.New

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrHandlerExists        = errspkg.ErrHandlerExists
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrTransportRequired    = errspkg.ErrTransportRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrConsumerRequired     = errspkg.ErrConsumerRequired
	ErrRegistryRequired     = errspkg.ErrRegistryRequired
	ErrResolverRequired     = errspkg.ErrResolverRequired
	ErrCleanerRequired      = errspkg.ErrCleanerRequired
	ErrQueryEngineURLNeeded = errspkg.ErrQueryEngineURLNeeded

	ErrInvalidMessage      = schema.ErrInvalidMessage
	ErrInvalidSchema       = schema.ErrInvalidSchema
	ErrSubscriptionMissing = store.ErrNotFound

	ErrConsumerGroupRequired = transport.ErrConsumerGroupRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	CreateULID = idspkg.CreateULID
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone    = runtimepkg.ErrorCategoryNone
	ErrorCategorySchema  = runtimepkg.ErrorCategorySchema
	ErrorCategoryTimeout = runtimepkg.ErrorCategoryTimeout
	ErrorCategoryOther   = runtimepkg.ErrorCategoryOther
)
