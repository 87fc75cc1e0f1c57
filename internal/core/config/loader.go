package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.HealthCheckInterval == 0 {
		cfg.Server.HealthCheckInterval = 10 * time.Second
	}
	if cfg.Channel.PollingInterval == 0 {
		cfg.Channel.PollingInterval = 10 * time.Second
	}
	if cfg.Channel.ProbeEvery == 0 {
		cfg.Channel.ProbeEvery = 6
	}
	if cfg.Resilience.BaseDelay == 0 {
		cfg.Resilience.BaseDelay = time.Second
	}
	if cfg.Resilience.MaxDelay == 0 {
		cfg.Resilience.MaxDelay = 30 * time.Second
	}
	if cfg.Resilience.MaxReconnectAttempts == 0 {
		cfg.Resilience.MaxReconnectAttempts = 5
	}
	if cfg.Resilience.FailureThreshold == 0 {
		cfg.Resilience.FailureThreshold = 5
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = 30 * time.Second
	}

	return &cfg, nil
}
