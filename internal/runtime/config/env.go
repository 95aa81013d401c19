package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "QUERYSUB_"

// FromEnv overlays QUERYSUB_* environment variables onto cfg. Malformed
// numeric or boolean values are ignored.
func FromEnv(cfg *Config) {
	setString(&cfg.PubSubSystem, "PUBSUB_SYSTEM")
	setList(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	setString(&cfg.KafkaConsumerGroup, "KAFKA_CONSUMER_GROUP")
	setString(&cfg.KafkaInitialOffset, "KAFKA_INITIAL_OFFSET")
	setString(&cfg.RabbitMQURL, "RABBITMQ_URL")
	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.HTTPServerAddress, "HTTP_SERVER_ADDRESS")
	setString(&cfg.HTTPPublisherURL, "HTTP_PUBLISHER_URL")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.AWSAccountID, "AWS_ACCOUNT_ID")
	setString(&cfg.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.AWSEndpoint, "AWS_ENDPOINT")
	setList(&cfg.ResultsTopics, "RESULTS_TOPICS")
	setString(&cfg.PoisonQueue, "POISON_QUEUE")
	setInt(&cfg.RetryMaxRetries, "RETRY_MAX_RETRIES")
	setDuration(&cfg.RetryInitialInterval, "RETRY_INITIAL_INTERVAL")
	setDuration(&cfg.RetryMaxInterval, "RETRY_MAX_INTERVAL")
	setString(&cfg.QueryEngineURL, "QUERY_ENGINE_URL")
	setDuration(&cfg.QueryEngineTimeout, "QUERY_ENGINE_TIMEOUT")
	setInt(&cfg.CleanupMaxTries, "CLEANUP_MAX_TRIES")
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.MetricsEnabled, "METRICS_ENABLED")
	setInt(&cfg.MetricsPort, "METRICS_PORT")
	setBool(&cfg.APIEnabled, "API_ENABLED")
	setInt(&cfg.APIPort, "API_PORT")
	setList(&cfg.APICORSAllowedOrigins, "API_CORS_ALLOWED_ORIGINS")

	// QUERYSUB_TOPIC_DATASETS=topic-a=events,topic-b=metrics
	if v := os.Getenv(envPrefix + "TOPIC_DATASETS"); v != "" {
		mapping := make(map[string]string)
		for _, pair := range splitList(v) {
			topic, dataset, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			mapping[strings.TrimSpace(topic)] = strings.TrimSpace(dataset)
		}
		cfg.TopicDatasets = mapping
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = splitList(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
