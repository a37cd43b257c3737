package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/paywatch/internal/core/domain"
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

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills per-watch endpoint settings. Server.Port is left
// alone: 0 disables the health server.
func applyDefaults(cfg *AppConfig) {
	for i := range cfg.Watches {
		if cfg.Watches[i].Endpoint.Timeout == 0 {
			cfg.Watches[i].Endpoint.Timeout = 10 * time.Second
		}
	}
}

func validate(cfg *AppConfig) error {
	if len(cfg.Watches) == 0 {
		return &domain.ConfigError{Field: "watches", Reason: "at least one watch is required"}
	}
	for i, w := range cfg.Watches {
		if w.Network == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("watches[%d].network", i), Reason: "must not be empty"}
		}
		if w.Address == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("watches[%d].address", i), Reason: "must not be empty"}
		}
		if w.Amount == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("watches[%d].amount", i), Reason: "must not be empty"}
		}
	}
	return nil
}
