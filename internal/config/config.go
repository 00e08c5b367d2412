package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/taskboard/pkg/backoff"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PipelineConfig holds the event delivery pipeline configuration: backoff
// shape, retry budgets, outbox polling and topic routing.
type PipelineConfig struct {
	InitialDelay       time.Duration     `mapstructure:"initial_delay"`
	BackoffMultiplier  float64           `mapstructure:"backoff_multiplier"`
	MaxBackoff         time.Duration     `mapstructure:"max_backoff"`
	JitterFactor       float64           `mapstructure:"jitter_factor"`
	MaxRetries         int               `mapstructure:"max_retries"`
	MaxPublishAttempts int               `mapstructure:"max_publish_attempts"`
	OutboxBatchSize    int               `mapstructure:"outbox_batch_size"`
	PollInterval       time.Duration     `mapstructure:"poll_interval"`
	Topics             map[string]string `mapstructure:"topics"`
	ConsumerGroup      string            `mapstructure:"consumer_group"`
	BlockDuration      time.Duration     `mapstructure:"block_duration"`
	ReclaimInterval    time.Duration     `mapstructure:"reclaim_interval"`
	ReclaimMinIdle     time.Duration     `mapstructure:"reclaim_min_idle"`
	ReplayRatePerSec   float64           `mapstructure:"replay_rate_per_sec"`
	ReplayBatchLimit   int               `mapstructure:"replay_batch_limit"`
}

// Backoff returns the backoff configuration shared by the publisher
// reschedule path and the consumer retry loop.
func (c *PipelineConfig) Backoff() backoff.Config {
	return backoff.Config{
		InitialDelay: c.InitialDelay,
		Multiplier:   c.BackoffMultiplier,
		MaxDelay:     c.MaxBackoff,
		JitterFactor: c.JitterFactor,
	}
}

// Topic resolves the configured topic for an event type, defaulting to the
// event type itself. Row-level routing keys take precedence over this map.
func (c *PipelineConfig) Topic(eventType string) string {
	if t, ok := c.Topics[eventType]; ok && t != "" {
		return t
	}
	return eventType
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("TASKBOARD")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/taskboard")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Pipeline.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.initial_delay must be positive"))
	}
	if c.Pipeline.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("pipeline.backoff_multiplier must be at least 1"))
	}
	if c.Pipeline.JitterFactor < 0 || c.Pipeline.JitterFactor > 1 {
		errs = append(errs, fmt.Errorf("pipeline.jitter_factor must be between 0 and 1"))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries must not be negative"))
	}
	if c.Pipeline.MaxPublishAttempts <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_publish_attempts must be positive"))
	}
	if c.Pipeline.OutboxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.outbox_batch_size must be positive"))
	}
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.poll_interval must be positive"))
	}
	if c.Pipeline.ReplayRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.replay_rate_per_sec must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "taskboard")
	v.SetDefault("database.password", "taskboard")
	v.SetDefault("database.database", "taskboard")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Pipeline defaults
	v.SetDefault("pipeline.initial_delay", "5s")
	v.SetDefault("pipeline.backoff_multiplier", 2.0)
	v.SetDefault("pipeline.max_backoff", "300s")
	v.SetDefault("pipeline.jitter_factor", 0.2)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.max_publish_attempts", 5)
	v.SetDefault("pipeline.outbox_batch_size", 10)
	v.SetDefault("pipeline.poll_interval", "2s")
	v.SetDefault("pipeline.consumer_group", "taskboard-consumers")
	v.SetDefault("pipeline.block_duration", "1s")
	v.SetDefault("pipeline.reclaim_interval", "30s")
	v.SetDefault("pipeline.reclaim_min_idle", "5m")
	v.SetDefault("pipeline.replay_rate_per_sec", 5.0)
	v.SetDefault("pipeline.replay_batch_limit", 100)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "taskboard-1")
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
