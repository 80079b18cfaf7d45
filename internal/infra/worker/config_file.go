package worker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors WorkerConfig with pointer fields so that keys absent
// from the YAML file leave the corresponding value untouched.
type fileConfig struct {
	PollIntervalMinutes *int           `yaml:"poll_interval_minutes"`
	FetchTimeout        *time.Duration `yaml:"fetch_timeout"`
	HealthPort          *int           `yaml:"health_port"`

	FailureThreshold      *int           `yaml:"failure_threshold"`
	CircuitInitialBackoff *time.Duration `yaml:"circuit_initial_backoff"`
	CircuitMaxBackoff     *time.Duration `yaml:"circuit_max_backoff"`

	StorageRetryAttempts  *int           `yaml:"storage_retry_attempts"`
	StorageInitialBackoff *time.Duration `yaml:"storage_initial_backoff"`
	StorageMaxBackoff     *time.Duration `yaml:"storage_max_backoff"`
	StorageErrorThreshold *int           `yaml:"storage_error_threshold"`

	KVDriver    *string `yaml:"kv_driver"`
	SQLitePath  *string `yaml:"sqlite_path"`
	PostgresDSN *string `yaml:"postgres_dsn"`

	RedisAddr     *string `yaml:"redis_addr"`
	RedisPassword *string `yaml:"redis_password"`
	RedisDB       *int    `yaml:"redis_db"`
	RedisPrefix   *string `yaml:"redis_prefix"`

	RemoteBaseURL *string `yaml:"remote_base_url"`

	SlackEnabled    *bool          `yaml:"slack_enabled"`
	SlackWebhookURL *string        `yaml:"slack_webhook_url"`
	SlackTimeout    *time.Duration `yaml:"slack_timeout"`

	DiscordEnabled    *bool          `yaml:"discord_enabled"`
	DiscordWebhookURL *string        `yaml:"discord_webhook_url"`
	DiscordTimeout    *time.Duration `yaml:"discord_timeout"`
}

// ApplyFile overlays the YAML configuration at path onto cfg. Only keys
// present in the file are applied. The merged configuration is validated;
// a file that would produce an invalid configuration is rejected as a whole.
func ApplyFile(cfg *WorkerConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	merged := *cfg
	overlay.applyTo(&merged)

	if err := merged.Validate(); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	*cfg = merged
	return nil
}

func (f *fileConfig) applyTo(cfg *WorkerConfig) {
	if f.PollIntervalMinutes != nil {
		cfg.PollIntervalMinutes = *f.PollIntervalMinutes
	}
	if f.FetchTimeout != nil {
		cfg.FetchTimeout = *f.FetchTimeout
	}
	if f.HealthPort != nil {
		cfg.HealthPort = *f.HealthPort
	}
	if f.FailureThreshold != nil {
		cfg.FailureThreshold = *f.FailureThreshold
	}
	if f.CircuitInitialBackoff != nil {
		cfg.CircuitInitialBackoff = *f.CircuitInitialBackoff
	}
	if f.CircuitMaxBackoff != nil {
		cfg.CircuitMaxBackoff = *f.CircuitMaxBackoff
	}
	if f.StorageRetryAttempts != nil {
		cfg.StorageRetryAttempts = *f.StorageRetryAttempts
	}
	if f.StorageInitialBackoff != nil {
		cfg.StorageInitialBackoff = *f.StorageInitialBackoff
	}
	if f.StorageMaxBackoff != nil {
		cfg.StorageMaxBackoff = *f.StorageMaxBackoff
	}
	if f.StorageErrorThreshold != nil {
		cfg.StorageErrorThreshold = *f.StorageErrorThreshold
	}
	if f.KVDriver != nil {
		cfg.KVDriver = *f.KVDriver
	}
	if f.SQLitePath != nil {
		cfg.SQLitePath = *f.SQLitePath
	}
	if f.PostgresDSN != nil {
		cfg.PostgresDSN = *f.PostgresDSN
	}
	if f.RedisAddr != nil {
		cfg.RedisAddr = *f.RedisAddr
	}
	if f.RedisPassword != nil {
		cfg.RedisPassword = *f.RedisPassword
	}
	if f.RedisDB != nil {
		cfg.RedisDB = *f.RedisDB
	}
	if f.RedisPrefix != nil {
		cfg.RedisPrefix = *f.RedisPrefix
	}
	if f.RemoteBaseURL != nil {
		cfg.RemoteBaseURL = *f.RemoteBaseURL
	}
	if f.SlackEnabled != nil {
		cfg.SlackEnabled = *f.SlackEnabled
	}
	if f.SlackWebhookURL != nil {
		cfg.SlackWebhookURL = *f.SlackWebhookURL
	}
	if f.SlackTimeout != nil {
		cfg.SlackTimeout = *f.SlackTimeout
	}
	if f.DiscordEnabled != nil {
		cfg.DiscordEnabled = *f.DiscordEnabled
	}
	if f.DiscordWebhookURL != nil {
		cfg.DiscordWebhookURL = *f.DiscordWebhookURL
	}
	if f.DiscordTimeout != nil {
		cfg.DiscordTimeout = *f.DiscordTimeout
	}
}
