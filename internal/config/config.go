package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Deriv    DerivConfig    `yaml:"deriv"`
	Channel  ChannelConfig  `yaml:"channel"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Database DBConfig       `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Poller   PollerConfig   `yaml:"poller"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DerivConfig holds Deriv API credentials.
type DerivConfig struct {
	Endpoint  string `yaml:"endpoint"`   // WebSocket endpoint without app_id
	AppID     int    `yaml:"app_id"`     // Application id (required)
	Token     string `yaml:"token"`      // Account API token
	TokenFile string `yaml:"token_file"` // Alternative to token
}

// ChannelConfig holds request channel settings.
type ChannelConfig struct {
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	SubscribeTimeout     time.Duration `yaml:"subscribe_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// CatalogConfig holds catalog REST service settings.
type CatalogConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// DBConfig holds the Postgres connection for journal tables.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer and router buffer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxBufferSize int           `yaml:"max_buffer_size"`
}

// PollerConfig holds tick poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Symbols     []string      `yaml:"symbols"` // Empty = catalog open symbols
}

// MetricsConfig holds the health and Prometheus metrics server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
