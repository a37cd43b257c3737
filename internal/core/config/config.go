package config

import (
	"time"

	"github.com/vietddude/paywatch/internal/infra/checkpoint"
	"github.com/vietddude/paywatch/internal/infra/journal"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Watches  []WatchConfig     `yaml:"watches"`
	Redis    checkpoint.Config `yaml:"redis"`
	Logging  LoggingConfig     `yaml:"logging"`
	Database journal.Config    `yaml:"database"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig toggles per-session request statistics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig describes one payment watch: which network, which address,
// what amount to expect and how the session should behave.
type WatchConfig struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`

	// MinConfirmations overrides the network's default finality depth. nil
	// follows the network default; an explicit 0 accepts first sight.
	MinConfirmations *uint64 `yaml:"min_confirmations"`

	// Realtime overrides the network's push capability. nil follows the
	// network default; an explicit false always forces polling.
	Realtime *bool `yaml:"realtime"`

	PollInterval time.Duration `yaml:"poll_interval"`
	AutoStop     bool          `yaml:"auto_stop"`

	Endpoint EndpointConfig `yaml:"endpoint"`
}

// EndpointConfig overrides the network's default RPC surface.
type EndpointConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectorLimit int           `yaml:"connector_limit"`
	ProxyURL       string        `yaml:"proxy_url"`
}
