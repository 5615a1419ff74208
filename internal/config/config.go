// Package config provides configuration management for commercestack using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort          = 8080
	defaultServerTimeout       = 30 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxIdleTime     = 30 * time.Minute
	defaultQueuePollInterval   = 5 * time.Second
	defaultQueueLockTimeout    = 30 * time.Minute
	defaultQueueRetryAttempts  = 3
	defaultQueueRetryDelay     = 5 * time.Second
	defaultQueueCompletedTTL   = 24 * time.Hour
	defaultQueueFailedTTL      = 7 * 24 * time.Hour
	defaultWorkerConcurrency   = 4
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Credit   CreditConfig   `mapstructure:"credit"`
}

// ServerConfig holds the admin/health HTTP listener configuration:
// job admission, status polling, and health/circuit-breaker endpoints.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// QueueConfig holds the job queue binding's polling and retention
// tuning. RetryAttempts and RetryDelay are loaded but not passed to the
// queue: a job's attempt limit (3) and backoff (from 5s) come from
// store.Job. CompletedRetention/FailedRetention are
// Duration rather than time.Duration so an operator can write "30d"
// instead of counting out "720h" by hand for a retention window that
// long-lived.
type QueueConfig struct {
	Driver             string        `mapstructure:"driver"` // db, grpc
	WorkerConcurrency  int           `mapstructure:"worker_concurrency"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	CompletedRetention Duration      `mapstructure:"completed_retention"`
	FailedRetention    Duration      `mapstructure:"failed_retention"`
	GRPCHealthAddr     string        `mapstructure:"grpc_health_addr"`
}

// StorageConfig holds the job sandbox root and blob store location.
type StorageConfig struct {
	SandboxRoot string `mapstructure:"sandbox_root"`
	BlobBucket  string `mapstructure:"blob_bucket"`
	BlobPrefix  string `mapstructure:"blob_prefix"`
	BlobBaseURL string `mapstructure:"blob_base_url"`

	// MaxDownloadSize caps the source video fetched by the download
	// processor (0 = unlimited). Supports human-readable values like
	// "2GB", or raw byte counts.
	MaxDownloadSize ByteSize `mapstructure:"max_download_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ProviderDefault pins the implementation id used for a provider Kind
// absent an explicit request or A/B test.
type ProviderDefault struct {
	Kind          string `mapstructure:"kind"`
	ImplementerID string `mapstructure:"implementer_id"`
}

// ProviderABTest declares a standing A/B split between two provider
// implementations of the same Kind (internal/providers.ABTest).
type ProviderABTest struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"`
	VariantA string `mapstructure:"variant_a"`
	VariantB string `mapstructure:"variant_b"`
	SplitB   int    `mapstructure:"split_b"`
}

// ProviderConfig holds the per-kind default implementation and any
// configured A/B tests, applied to internal/providers.Registry at
// startup.
type ProviderConfig struct {
	Defaults []ProviderDefault `mapstructure:"defaults"`
	ABTests  []ProviderABTest  `mapstructure:"ab_tests"`
}

// CreditConfig holds the credit reserve/commit/refund idempotency key
// prefix and whether credit accounting is enabled at all (a deployment
// with no billing can disable it; internal/job.Service treats a zero
// CreditCost as "no credit involved" regardless).
type CreditConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	IdempotencyKeyPrefix string `mapstructure:"idempotency_key_prefix"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with COMMERCESTACK_ and use
// underscores for nesting. Example: COMMERCESTACK_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/commercestack")
		v.AddConfigPath("$HOME/.commercestack")
	}

	// Environment variable settings
	v.SetEnvPrefix("COMMERCESTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "commercestack.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Queue defaults
	v.SetDefault("queue.driver", "db")
	v.SetDefault("queue.worker_concurrency", defaultWorkerConcurrency)
	v.SetDefault("queue.poll_interval", defaultQueuePollInterval)
	v.SetDefault("queue.lock_timeout", defaultQueueLockTimeout)
	v.SetDefault("queue.retry_attempts", defaultQueueRetryAttempts)
	v.SetDefault("queue.retry_delay", defaultQueueRetryDelay)
	v.SetDefault("queue.completed_retention", defaultQueueCompletedTTL)
	v.SetDefault("queue.failed_retention", defaultQueueFailedTTL)
	v.SetDefault("queue.grpc_health_addr", "")

	// Storage defaults
	v.SetDefault("storage.sandbox_root", "./data/sandboxes")
	v.SetDefault("storage.blob_bucket", "")
	v.SetDefault("storage.blob_prefix", "")
	v.SetDefault("storage.blob_base_url", "http://localhost:8080/blobs")
	v.SetDefault("storage.max_download_size", 2*1024*1024*1024) // 2GB

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Provider defaults (empty: operators register real implementations
	// and point defaults/ab_tests at them via config or admin API)
	v.SetDefault("provider.defaults", []ProviderDefault{})
	v.SetDefault("provider.ab_tests", []ProviderABTest{})

	// Credit defaults
	v.SetDefault("credit.enabled", false)
	v.SetDefault("credit.idempotency_key_prefix", "commercestack")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Queue validation
	validQueueDrivers := map[string]bool{"db": true, "grpc": true}
	if !validQueueDrivers[c.Queue.Driver] {
		return fmt.Errorf("queue.driver must be one of: db, grpc")
	}
	if c.Queue.WorkerConcurrency < 1 {
		return fmt.Errorf("queue.worker_concurrency must be at least 1")
	}

	// Storage validation
	if c.Storage.SandboxRoot == "" {
		return fmt.Errorf("storage.sandbox_root is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Provider validation
	for _, ab := range c.Provider.ABTests {
		if ab.SplitB < 0 || ab.SplitB > 100 {
			return fmt.Errorf("provider.ab_tests[%s].split_b must be between 0 and 100", ab.ID)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
