package worker

import (
	"fmt"
	"log/slog"
	"time"

	"notifsync/internal/pkg/config"
)

// kvDrivers are the accepted values for KV_DRIVER.
var kvDrivers = []string{"memory", "sqlite", "postgres", "redis"}

// WorkerConfig holds the configuration for the sync worker: poll scheduling,
// circuit breaker and storage resilience settings, the KV backend selection,
// and the webhook notification channels.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - An optional YAML file overlay (applied via ApplyFile)
//   - Default values (provided by DefaultConfig)
//
// All fields have defaults and validation rules so the worker can operate
// safely even with invalid or missing configuration (fail-open strategy).
type WorkerConfig struct {
	// PollIntervalMinutes is the minutes between scheduled polls.
	// Range: 1-1440. Default: 5.
	PollIntervalMinutes int `yaml:"poll_interval_minutes"`

	// FetchTimeout bounds the remote fetch within one poll.
	// Range: 1s-5m. Default: 10s.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// HealthPort is the port for the health/status HTTP server.
	// Range: 1024-65535. Default: 9091.
	HealthPort int `yaml:"health_port"`

	// FailureThreshold is the consecutive remote failures that trip the
	// circuit breaker. Range: 1-100. Default: 3.
	FailureThreshold int `yaml:"failure_threshold"`

	// CircuitInitialBackoff is the open window after the first trip.
	// Default: 5s.
	CircuitInitialBackoff time.Duration `yaml:"circuit_initial_backoff"`

	// CircuitMaxBackoff caps the doubling open window. Default: 5m.
	CircuitMaxBackoff time.Duration `yaml:"circuit_max_backoff"`

	// StorageRetryAttempts is the total attempts per storage operation.
	// Range: 1-10. Default: 3.
	StorageRetryAttempts int `yaml:"storage_retry_attempts"`

	// StorageInitialBackoff is the delay before the first storage retry.
	// Default: 100ms.
	StorageInitialBackoff time.Duration `yaml:"storage_initial_backoff"`

	// StorageMaxBackoff caps the storage retry delay. Default: 2s.
	StorageMaxBackoff time.Duration `yaml:"storage_max_backoff"`

	// StorageErrorThreshold is the consecutive storage failures that raise
	// the degraded badge. Range: 1-100. Default: 5.
	StorageErrorThreshold int `yaml:"storage_error_threshold"`

	// KVDriver selects the storage backend: memory, sqlite, postgres, redis.
	// Default: sqlite.
	KVDriver string `yaml:"kv_driver"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr, RedisPassword, RedisDB, and RedisPrefix configure the
	// redis driver.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	// RemoteBaseURL is the base URL of the notification service.
	RemoteBaseURL string `yaml:"remote_base_url"`

	// Slack webhook channel settings.
	SlackEnabled    bool          `yaml:"slack_enabled"`
	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	SlackTimeout    time.Duration `yaml:"slack_timeout"`

	// Discord webhook channel settings.
	DiscordEnabled    bool          `yaml:"discord_enabled"`
	DiscordWebhookURL string        `yaml:"discord_webhook_url"`
	DiscordTimeout    time.Duration `yaml:"discord_timeout"`
}

// DefaultConfig returns a WorkerConfig with production-ready default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PollIntervalMinutes: 5,
		FetchTimeout:        10 * time.Second,
		HealthPort:          9091,

		FailureThreshold:      3,
		CircuitInitialBackoff: 5 * time.Second,
		CircuitMaxBackoff:     5 * time.Minute,

		StorageRetryAttempts:  3,
		StorageInitialBackoff: 100 * time.Millisecond,
		StorageMaxBackoff:     2 * time.Second,
		StorageErrorThreshold: 5,

		KVDriver:    "sqlite",
		SQLitePath:  "notifsync.db",
		RedisAddr:   "localhost:6379",
		RedisPrefix: "notifsync:",

		RemoteBaseURL: "http://localhost:8080",

		SlackTimeout:   10 * time.Second,
		DiscordTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration values using the reusable validators
// from internal/pkg/config. All invalid fields are collected and returned
// together.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateIntRange(c.PollIntervalMinutes, 1, 1440); err != nil {
		errs = append(errs, fmt.Errorf("poll interval minutes: %w", err))
	}
	if err := config.ValidateDuration(c.FetchTimeout, 1*time.Second, 5*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("fetch timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.FailureThreshold, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("failure threshold: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CircuitInitialBackoff); err != nil {
		errs = append(errs, fmt.Errorf("circuit initial backoff: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CircuitMaxBackoff); err != nil {
		errs = append(errs, fmt.Errorf("circuit max backoff: %w", err))
	}
	if err := config.ValidateIntRange(c.StorageRetryAttempts, 1, 10); err != nil {
		errs = append(errs, fmt.Errorf("storage retry attempts: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.StorageInitialBackoff); err != nil {
		errs = append(errs, fmt.Errorf("storage initial backoff: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.StorageMaxBackoff); err != nil {
		errs = append(errs, fmt.Errorf("storage max backoff: %w", err))
	}
	if err := config.ValidateIntRange(c.StorageErrorThreshold, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("storage error threshold: %w", err))
	}
	if err := config.ValidateOneOf(c.KVDriver, kvDrivers); err != nil {
		errs = append(errs, fmt.Errorf("kv driver: %w", err))
	}
	if err := config.ValidateHTTPURL(c.RemoteBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("remote base url: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// This function implements the fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from environment variables
//  3. Validate each loaded value
//  4. If validation fails: use the default, log a warning, increment metrics
//  5. Never return an error - always return a valid configuration
//
// Environment variables: POLL_INTERVAL_MINUTES, FETCH_TIMEOUT,
// WORKER_HEALTH_PORT, FAILURE_THRESHOLD, CIRCUIT_INITIAL_BACKOFF,
// CIRCUIT_MAX_BACKOFF, STORAGE_RETRY_ATTEMPTS, STORAGE_INITIAL_BACKOFF,
// STORAGE_MAX_BACKOFF, STORAGE_ERROR_THRESHOLD, KV_DRIVER, SQLITE_PATH,
// POSTGRES_DSN, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_PREFIX,
// REMOTE_BASE_URL, SLACK_ENABLED, SLACK_WEBHOOK_URL, SLACK_TIMEOUT,
// DISCORD_ENABLED, DISCORD_WEBHOOK_URL, DISCORD_TIMEOUT.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	applyFallback := func(field string, result config.ConfigLoadResult) {
		if !result.FallbackApplied {
			return
		}
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	result := config.LoadEnvInt("POLL_INTERVAL_MINUTES", cfg.PollIntervalMinutes, func(v int) error {
		return config.ValidateIntRange(v, 1, 1440)
	})
	cfg.PollIntervalMinutes = result.Value.(int)
	applyFallback("poll_interval_minutes", result)

	result = config.LoadEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Second, 5*time.Minute)
	})
	cfg.FetchTimeout = result.Value.(time.Duration)
	applyFallback("fetch_timeout", result)

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	applyFallback("health_port", result)

	result = config.LoadEnvInt("FAILURE_THRESHOLD", cfg.FailureThreshold, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.FailureThreshold = result.Value.(int)
	applyFallback("failure_threshold", result)

	result = config.LoadEnvDuration("CIRCUIT_INITIAL_BACKOFF", cfg.CircuitInitialBackoff, config.ValidatePositiveDuration)
	cfg.CircuitInitialBackoff = result.Value.(time.Duration)
	applyFallback("circuit_initial_backoff", result)

	result = config.LoadEnvDuration("CIRCUIT_MAX_BACKOFF", cfg.CircuitMaxBackoff, config.ValidatePositiveDuration)
	cfg.CircuitMaxBackoff = result.Value.(time.Duration)
	applyFallback("circuit_max_backoff", result)

	result = config.LoadEnvInt("STORAGE_RETRY_ATTEMPTS", cfg.StorageRetryAttempts, func(v int) error {
		return config.ValidateIntRange(v, 1, 10)
	})
	cfg.StorageRetryAttempts = result.Value.(int)
	applyFallback("storage_retry_attempts", result)

	result = config.LoadEnvDuration("STORAGE_INITIAL_BACKOFF", cfg.StorageInitialBackoff, config.ValidatePositiveDuration)
	cfg.StorageInitialBackoff = result.Value.(time.Duration)
	applyFallback("storage_initial_backoff", result)

	result = config.LoadEnvDuration("STORAGE_MAX_BACKOFF", cfg.StorageMaxBackoff, config.ValidatePositiveDuration)
	cfg.StorageMaxBackoff = result.Value.(time.Duration)
	applyFallback("storage_max_backoff", result)

	result = config.LoadEnvInt("STORAGE_ERROR_THRESHOLD", cfg.StorageErrorThreshold, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.StorageErrorThreshold = result.Value.(int)
	applyFallback("storage_error_threshold", result)

	result = config.LoadEnvWithFallback("KV_DRIVER", cfg.KVDriver, func(v string) error {
		return config.ValidateOneOf(v, kvDrivers)
	})
	cfg.KVDriver = result.Value.(string)
	applyFallback("kv_driver", result)

	cfg.SQLitePath = config.LoadEnvString("SQLITE_PATH", cfg.SQLitePath)
	cfg.PostgresDSN = config.LoadEnvString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = config.LoadEnvString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = config.LoadEnvString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisPrefix = config.LoadEnvString("REDIS_PREFIX", cfg.RedisPrefix)

	result = config.LoadEnvInt("REDIS_DB", cfg.RedisDB, func(v int) error {
		return config.ValidateIntRange(v, 0, 15)
	})
	cfg.RedisDB = result.Value.(int)
	applyFallback("redis_db", result)

	result = config.LoadEnvWithFallback("REMOTE_BASE_URL", cfg.RemoteBaseURL, config.ValidateHTTPURL)
	cfg.RemoteBaseURL = result.Value.(string)
	applyFallback("remote_base_url", result)

	result = config.LoadEnvBool("SLACK_ENABLED", cfg.SlackEnabled)
	cfg.SlackEnabled = result.Value.(bool)
	applyFallback("slack_enabled", result)

	cfg.SlackWebhookURL = config.LoadEnvString("SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)

	result = config.LoadEnvDuration("SLACK_TIMEOUT", cfg.SlackTimeout, config.ValidatePositiveDuration)
	cfg.SlackTimeout = result.Value.(time.Duration)
	applyFallback("slack_timeout", result)

	result = config.LoadEnvBool("DISCORD_ENABLED", cfg.DiscordEnabled)
	cfg.DiscordEnabled = result.Value.(bool)
	applyFallback("discord_enabled", result)

	cfg.DiscordWebhookURL = config.LoadEnvString("DISCORD_WEBHOOK_URL", cfg.DiscordWebhookURL)

	result = config.LoadEnvDuration("DISCORD_TIMEOUT", cfg.DiscordTimeout, config.ValidatePositiveDuration)
	cfg.DiscordTimeout = result.Value.(time.Duration)
	applyFallback("discord_timeout", result)

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}
