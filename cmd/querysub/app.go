package main

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/drblury/querysub/internal/replays"
	runtimepkg "github.com/drblury/querysub/internal/runtime"
	configpkg "github.com/drblury/querysub/internal/runtime/config"
	"github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/cleanup"
	"github.com/drblury/querysub/internal/subscription/consumer"
	"github.com/drblury/querysub/internal/subscription/dataset"
	"github.com/drblury/querysub/internal/subscription/metrics"
	"github.com/drblury/querysub/internal/subscription/registry"
	"github.com/drblury/querysub/internal/subscription/schema"
	"github.com/drblury/querysub/internal/subscription/store"
)

type appOptions struct {
	Migrate bool
	// LogSubscriptions registers a subscriber that only logs results for
	// each listed subscription type.
	LogSubscriptions []string
	// Subscribers defaults to registry.Default.
	Subscribers *registry.Registry
	// Deps is passed to the service. Subscribers is filled in.
	Deps runtimepkg.ServiceDependencies
}

type app struct {
	svc      *runtimepkg.Service
	db       *gorm.DB
	resolver store.Resolver
	replays  replays.Store
	recorder *metrics.Recorder
	consumer *consumer.Consumer
	log      logging.ServiceLogger
}

func newApp(ctx context.Context, cfg *configpkg.Config, log logging.ServiceLogger, opts appOptions) (*app, error) {
	subscribers := opts.Subscribers
	if subscribers == nil {
		subscribers = registry.Default
	}
	for _, key := range opts.LogSubscriptions {
		if err := subscribers.Register(key, logSubscriber(log)); err != nil {
			return nil, err
		}
	}

	a := &app{log: log}
	if err := a.openStores(ctx, cfg, opts.Migrate); err != nil {
		a.Close()
		return nil, err
	}

	a.recorder = metrics.NewRecorder(opts.Deps.Registerer)
	if cfg.MetricsEnabled {
		if err := a.recorder.Register(); err != nil {
			a.Close()
			return nil, fmt.Errorf("register subscriber metrics: %w", err)
		}
	}

	dispatcher, err := cleanup.New(cleanup.Config{
		BaseURL:  cfg.QueryEngineURL,
		Timeout:  cfg.QueryEngineTimeout,
		MaxTries: uint(max(cfg.CleanupMaxTries, 0)),
	}, log, a.recorder)
	if err != nil {
		a.Close()
		return nil, err
	}

	topics, err := dataset.NewTopicMap(cfg.TopicDatasets)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.consumer, err = consumer.New(consumer.Dependencies{
		Registry: subscribers,
		Resolver: a.resolver,
		Cleaner:  dispatcher,
		Observer: a.recorder,
		Topics:   topics,
		Logger:   log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := opts.Deps
	deps.Subscribers = subscribers
	a.svc, err = runtimepkg.TryNewService(cfg, log, ctx, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := runtimepkg.RegisterResultsConsumer(a.svc, runtimepkg.ResultsConsumerRegistration{Consumer: a.consumer}); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.APIEnabled {
		a.svc.RegisterAPIRoutes(replays.NewHandler(a.replays, log).Mount)
	}
	return a, nil
}

// openStores selects postgres when a DSN is configured and memory stores
// otherwise.
func (a *app) openStores(ctx context.Context, cfg *configpkg.Config, migrate bool) error {
	if cfg.DatabaseDSN == "" {
		a.log.Info("No database configured, using in-memory stores", nil)
		a.resolver = store.NewMemoryStore()
		a.replays = replays.NewMemoryStore()
		return nil
	}

	db, err := store.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	a.db = db

	subs := store.NewGormStore(db, a.log)
	replayStore := replays.NewGormStore(db)
	if migrate {
		if err := subs.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate subscriptions: %w", err)
		}
		if err := replayStore.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate replays: %w", err)
		}
	}
	a.resolver = subs
	a.replays = replayStore
	return nil
}

// Run blocks until ctx is cancelled or the router fails.
func (a *app) Run(ctx context.Context) error {
	a.log.Info("Starting query subscription consumer", logging.LogFields{
		"topics":      a.svc.Conf.ResultsTopics,
		"subscribers": len(a.svc.HandlersSnapshot().Subscribers),
	})
	err := a.svc.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) Close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	if a.db != nil {
		errs = append(errs, store.Close(a.db))
	}
	return errors.Join(errs...)
}

func logSubscriber(log logging.ServiceLogger) registry.Handler {
	return registry.HandlerFunc(func(_ context.Context, payload schema.DispatchPayload, sub store.Subscription) error {
		log.Info("Subscription result", logging.LogFields{
			"subscription_id": payload.SubscriptionID,
			"type":            sub.Type,
			"project_id":      sub.ProjectID,
			"rows":            len(payload.Values.Data),
			"timestamp":       payload.Timestamp,
		})
		return nil
	})
}
