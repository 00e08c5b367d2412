package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Pipeline: PipelineConfig{
			InitialDelay:       5 * time.Second,
			BackoffMultiplier:  2.0,
			MaxBackoff:         300 * time.Second,
			JitterFactor:       0.2,
			MaxRetries:         2,
			MaxPublishAttempts: 5,
			OutboxBatchSize:    10,
			PollInterval:       2 * time.Second,
			ReplayRatePerSec:   5,
			ReplayBatchLimit:   100,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_PipelineFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"zero initial delay", func(c *Config) { c.Pipeline.InitialDelay = 0 }, "pipeline.initial_delay"},
		{"multiplier below one", func(c *Config) { c.Pipeline.BackoffMultiplier = 0.5 }, "pipeline.backoff_multiplier"},
		{"jitter above one", func(c *Config) { c.Pipeline.JitterFactor = 1.5 }, "pipeline.jitter_factor"},
		{"negative jitter", func(c *Config) { c.Pipeline.JitterFactor = -0.1 }, "pipeline.jitter_factor"},
		{"negative max retries", func(c *Config) { c.Pipeline.MaxRetries = -1 }, "pipeline.max_retries"},
		{"zero publish attempts", func(c *Config) { c.Pipeline.MaxPublishAttempts = 0 }, "pipeline.max_publish_attempts"},
		{"zero batch size", func(c *Config) { c.Pipeline.OutboxBatchSize = 0 }, "pipeline.outbox_batch_size"},
		{"zero poll interval", func(c *Config) { c.Pipeline.PollInterval = 0 }, "pipeline.poll_interval"},
		{"zero replay rate", func(c *Config) { c.Pipeline.ReplayRatePerSec = 0 }, "pipeline.replay_rate_per_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPipelineConfig_Topic(t *testing.T) {
	cfg := PipelineConfig{
		Topics: map[string]string{
			"task.created": "workspace-events",
		},
	}

	assert.Equal(t, "workspace-events", cfg.Topic("task.created"))
	assert.Equal(t, "task.completed", cfg.Topic("task.completed"), "unmapped types use the event type")
}

func TestPipelineConfig_Backoff(t *testing.T) {
	cfg := PipelineConfig{
		InitialDelay:      5 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
		JitterFactor:      0.2,
	}

	b := cfg.Backoff()
	assert.Equal(t, 5*time.Second, b.InitialDelay)
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Equal(t, 60*time.Second, b.MaxDelay)
	assert.Equal(t, 0.2, b.JitterFactor)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.InitialDelay)
	assert.Equal(t, 2.0, cfg.Pipeline.BackoffMultiplier)
	assert.Equal(t, 300*time.Second, cfg.Pipeline.MaxBackoff)
	assert.Equal(t, 0.2, cfg.Pipeline.JitterFactor)
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 5, cfg.Pipeline.MaxPublishAttempts)
	assert.Equal(t, 10, cfg.Pipeline.OutboxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, "taskboard-consumers", cfg.Pipeline.ConsumerGroup)
	assert.Equal(t, 100, cfg.Pipeline.ReplayBatchLimit)
}
