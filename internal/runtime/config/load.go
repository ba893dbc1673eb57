package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration: an in-memory broker and store,
// three fetch attempts and a small worker pool.
func Default() Config {
	return Config{
		ServiceName:        "quoteflow",
		PubSubSystem:       "channel",
		KafkaClientID:      "quoteflow",
		KafkaConsumerGroup: "quoteflow-outcomes",
		OutcomeTopic:       "quote-outcomes",
		PoisonQueue:        "quote-outcomes.poison",
		RetryMaxRetries:    3,
		FetchMaxAttempts:   3,
		FetchBaseDelay:     200 * time.Millisecond,
		FetchTimeout:       5 * time.Second,
		WorkerConcurrency:  16,
		StoreDriver:        "memory",
		IntakeAddress:      ":8080",
		OutcomeAPIAddress:  ":8082",
		MetricsPort:        9090,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load resolves configuration in priority order: defaults, then the YAML file
// at path (skipped when path is empty or missing), then QUOTEFLOW_* env vars.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays QUOTEFLOW_* variables and reports every variable whose
// value does not parse.
func applyEnv(cfg *Config) error {
	var env envReader
	cfg.ServiceName = envOrDefault("QUOTEFLOW_SERVICE_NAME", cfg.ServiceName)
	cfg.PubSubSystem = strings.ToLower(envOrDefault("QUOTEFLOW_PUBSUB_SYSTEM", cfg.PubSubSystem))
	cfg.KafkaBrokers = envCSV("QUOTEFLOW_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaClientID = envOrDefault("QUOTEFLOW_KAFKA_CLIENT_ID", cfg.KafkaClientID)
	cfg.KafkaConsumerGroup = envOrDefault("QUOTEFLOW_KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.RabbitMQURL = envOrDefault("QUOTEFLOW_RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.NATSURL = envOrDefault("QUOTEFLOW_NATS_URL", cfg.NATSURL)
	cfg.HTTPServerAddress = envOrDefault("QUOTEFLOW_HTTP_SERVER_ADDRESS", cfg.HTTPServerAddress)
	cfg.HTTPPublisherURL = envOrDefault("QUOTEFLOW_HTTP_PUBLISHER_URL", cfg.HTTPPublisherURL)
	cfg.AWSRegion = envOrDefault("QUOTEFLOW_AWS_REGION", cfg.AWSRegion)
	cfg.AWSAccountID = envOrDefault("QUOTEFLOW_AWS_ACCOUNT_ID", cfg.AWSAccountID)
	cfg.AWSAccessKeyID = envOrDefault("QUOTEFLOW_AWS_ACCESS_KEY_ID", cfg.AWSAccessKeyID)
	cfg.AWSSecretAccessKey = envOrDefault("QUOTEFLOW_AWS_SECRET_ACCESS_KEY", cfg.AWSSecretAccessKey)
	cfg.AWSEndpoint = envOrDefault("QUOTEFLOW_AWS_ENDPOINT", cfg.AWSEndpoint)

	cfg.OutcomeTopic = envOrDefault("QUOTEFLOW_OUTCOME_TOPIC", cfg.OutcomeTopic)
	cfg.PoisonQueue = envOrDefault("QUOTEFLOW_POISON_QUEUE", cfg.PoisonQueue)

	cfg.RetryMaxRetries = env.intVar("QUOTEFLOW_RETRY_MAX_RETRIES", cfg.RetryMaxRetries)
	cfg.RetryInitialInterval = env.durationVar("QUOTEFLOW_RETRY_INITIAL_INTERVAL", cfg.RetryInitialInterval)
	cfg.RetryMaxInterval = env.durationVar("QUOTEFLOW_RETRY_MAX_INTERVAL", cfg.RetryMaxInterval)

	cfg.FetchMaxAttempts = env.intVar("QUOTEFLOW_FETCH_MAX_ATTEMPTS", cfg.FetchMaxAttempts)
	cfg.FetchBaseDelay = env.durationVar("QUOTEFLOW_FETCH_BASE_DELAY", cfg.FetchBaseDelay)
	cfg.FetchMaxDelay = env.durationVar("QUOTEFLOW_FETCH_MAX_DELAY", cfg.FetchMaxDelay)
	cfg.FetchTimeout = env.durationVar("QUOTEFLOW_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.WorkerConcurrency = env.intVar("QUOTEFLOW_WORKER_CONCURRENCY", cfg.WorkerConcurrency)

	cfg.StoreDriver = strings.ToLower(envOrDefault("QUOTEFLOW_STORE_DRIVER", cfg.StoreDriver))
	cfg.StoreDSN = envOrDefault("QUOTEFLOW_STORE_DSN", cfg.StoreDSN)

	cfg.IntakeAddress = envOrDefault("QUOTEFLOW_INTAKE_ADDRESS", cfg.IntakeAddress)
	cfg.OutcomeAPIAddress = envOrDefault("QUOTEFLOW_OUTCOME_API_ADDRESS", cfg.OutcomeAPIAddress)
	cfg.MetricsEnabled = env.boolVar("QUOTEFLOW_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsPort = env.intVar("QUOTEFLOW_METRICS_PORT", cfg.MetricsPort)
	cfg.LogLevel = envOrDefault("QUOTEFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("QUOTEFLOW_LOG_FORMAT", cfg.LogFormat)

	// API keys are never committed to the file; QUOTEFLOW_ENDPOINT_<ID>_API_KEY
	// fills them in per endpoint.
	for i := range cfg.Endpoints {
		name := "QUOTEFLOW_ENDPOINT_" + envName(cfg.Endpoints[i].ID) + "_API_KEY"
		cfg.Endpoints[i].APIKey = envOrDefault(name, cfg.Endpoints[i].APIKey)
	}
	return env.err()
}

func envName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

type envReader struct {
	errs []error
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func (r *envReader) fail(name, raw string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", name, raw, err))
}

func (r *envReader) intVar(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(name, raw, err)
		return fallback
	}
	return v
}

func (r *envReader) durationVar(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(name, raw, err)
		return fallback
	}
	return v
}

func (r *envReader) boolVar(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(name, raw, err)
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
