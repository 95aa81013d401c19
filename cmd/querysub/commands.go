package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	configpkg "github.com/drblury/querysub/internal/runtime/config"
	"github.com/drblury/querysub/internal/runtime/logging"
)

type options struct {
	configPath       string
	pubsubSystem     string
	kafkaBrokers     []string
	resultsTopics    []string
	queryEngineURL   string
	databaseDSN      string
	logLevel         string
	migrate          bool
	logSubscriptions []string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "querysub",
		Short:         "Query subscription result consumer",
		Long:          "querysub reads query subscription results from a broker and dispatches them to the registered subscribers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.pubsubSystem, "pubsub", "", "broker to consume from (kafka, rabbitmq, nats, aws, http, channel)")
	flags.StringSliceVar(&opts.kafkaBrokers, "kafka-brokers", nil, "kafka broker addresses")
	flags.StringSliceVar(&opts.resultsTopics, "topics", nil, "results topics to consume")
	flags.StringVar(&opts.queryEngineURL, "query-engine-url", "", "base URL of the query engine subscription API")
	flags.StringVar(&opts.databaseDSN, "database-dsn", "", "postgres DSN for subscriptions and replays; empty uses memory stores")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Consume subscription results until interrupted",
		Aliases: []string{"start"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, &cfg, log, appOptions{
				Migrate:          opts.migrate,
				LogSubscriptions: opts.logSubscriptions,
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
	runCmd.Flags().BoolVar(&opts.migrate, "migrate", false, "create or update database tables before starting")
	runCmd.Flags().StringSliceVar(&opts.logSubscriptions, "log-subscription-type", nil, "subscription types whose results are only logged")

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the effective configuration and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}

	root.AddCommand(runCmd, checkCmd)
	return root
}

// loadConfig layers defaults, the config file, QUERYSUB_* variables and
// flags, in that order.
func loadConfig(opts *options) (configpkg.Config, error) {
	cfg := configpkg.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = configpkg.LoadFile(opts.configPath, cfg); err != nil {
			return cfg, err
		}
	}
	configpkg.FromEnv(&cfg)

	if opts.pubsubSystem != "" {
		cfg.PubSubSystem = opts.pubsubSystem
	}
	if len(opts.kafkaBrokers) > 0 {
		cfg.KafkaBrokers = opts.kafkaBrokers
	}
	if len(opts.resultsTopics) > 0 {
		cfg.ResultsTopics = opts.resultsTopics
	}
	if opts.queryEngineURL != "" {
		cfg.QueryEngineURL = opts.queryEngineURL
	}
	if opts.databaseDSN != "" {
		cfg.DatabaseDSN = opts.databaseDSN
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func newLogger(level string) (logging.ServiceLogger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return logging.NewSlogServiceLogger(slog.New(handler)), nil
}
