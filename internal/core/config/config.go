package config

import (
	"time"

	redisclient "github.com/vietddude/livefeed/internal/infra/redis"
	"github.com/vietddude/livefeed/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Channel    ChannelConfig      `yaml:"channel"`
	Resilience ResilienceConfig   `yaml:"resilience"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                int           `yaml:"port"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // health report cache window
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChannelConfig holds settings for the data channel endpoints.
type ChannelConfig struct {
	URL             string        `yaml:"url"`              // websocket push endpoint (ws:// or wss://)
	PollEndpoint    string        `yaml:"poll_endpoint"`    // optional; derived from URL when empty
	PollingInterval time.Duration `yaml:"polling_interval"` // pull cadence while in polling mode
	ProbeEvery      int           `yaml:"probe_every"`      // push probe every N polls; 0 disables
}

// ResilienceConfig holds reconnect backoff and circuit breaker tuning.
type ResilienceConfig struct {
	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	FailureThreshold     int           `yaml:"failure_threshold"`
	ResetTimeout         time.Duration `yaml:"reset_timeout"`
}
