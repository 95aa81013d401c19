package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/querysub/internal/runtime/config"
	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/registry"
	"github.com/drblury/querysub/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

const shutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	// Transports resolves the configured pubsub system. Nil uses
	// transport.DefaultRegistry.
	Transports *transport.Registry
	// Middlewares are appended after the default chain.
	Middlewares               []MiddlewareRegistration
	DisableDefaultMiddlewares bool
	ErrorClassifier           ErrorClassifier
	Hooks                     MessageHooks
	// Subscribers is listed by the introspection API.
	Subscribers *registry.Registry
	// Registerer receives router and poison metrics. Nil uses the default
	// Prometheus registerer.
	Registerer prometheus.Registerer
}

// Service wires a Watermill router, the configured transport, the
// middleware chain and the HTTP servers.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	router       *message.Router
	capabilities transport.Capabilities

	subscribers     *registry.Registry
	poison          *PoisonMetrics
	registerer      prometheus.Registerer
	errorClassifier ErrorClassifier

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]chi.Router
	httpServersMu sync.Mutex
}

// NewService is TryNewService that panics on error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	svc, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return svc
}

// TryNewService constructs a Service for the supplied configuration.
// Register handlers on the returned Service before calling Start.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.ConfigValidationError{Err: err}
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	s := &Service{
		Conf:            conf,
		Logger:          log,
		subscribers:     deps.Subscribers,
		registerer:      registerer,
		poison:          NewPoisonMetrics(registerer),
		errorClassifier: deps.ErrorClassifier,
	}
	if s.errorClassifier == nil {
		s.errorClassifier = DefaultErrorClassifier
	}
	if conf.MetricsEnabled {
		if err := s.poison.Register(); err != nil {
			return nil, fmt.Errorf("register poison metrics: %w", err)
		}
	}

	transports := deps.Transports
	if transports == nil {
		transports = transport.DefaultRegistry
	}
	tr, err := transports.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	if tr.Subscriber == nil {
		return nil, errspkg.ErrTransportRequired
	}
	s.publisher = tr.Publisher
	s.subscriber = tr.Subscriber
	s.capabilities = transports.GetCapabilities(conf.PubSubSystem)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: shutdownTimeout}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the router until ctx is cancelled. HTTP servers are started
// first and shut down when the router stops.
func (s *Service) Start(ctx context.Context) error {
	s.registerAPI()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers := s.startHTTPServers()
	err := routerRun(s.router, ctx)
	s.shutdownHTTPServers(servers)
	return err
}

// Running is closed once the router is processing messages.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close releases the transport.
func (s *Service) Close() error {
	var errs []error
	if s.subscriber != nil {
		errs = append(errs, s.subscriber.Close())
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	return errors.Join(errs...)
}

// Capabilities reports what the active transport supports.
func (s *Service) Capabilities() transport.Capabilities {
	return s.capabilities
}

// Poison returns the poison message counters.
func (s *Service) Poison() *PoisonMetrics {
	return s.poison
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var registrations []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		registrations = append(registrations, DefaultMiddlewares()...)
	}
	if !deps.Hooks.empty() {
		registrations = append(registrations, HooksMiddleware(deps.Hooks))
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return DefaultErrorClassifier
	}
	return s.errorClassifier
}

func (s *Service) portRouter(port int) chi.Router {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]chi.Router)
	}
	r, ok := s.httpServers[port]
	if !ok {
		r = chi.NewRouter()
		s.httpServers[port] = r
	}
	return r
}

// RegisterHTTPHandler serves handler for pattern on port once the service
// starts.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.portRouter(port).Handle(pattern, handler)
}

// RegisterAPIRoutes lets fn add routes to the API port router.
func (s *Service) RegisterAPIRoutes(fn func(chi.Router)) {
	fn(s.portRouter(s.apiPort()))
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, handler := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server stopped", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	return servers
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("HTTP server shutdown failed", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}
