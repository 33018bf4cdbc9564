package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEndpoint             = "wss://ws.derivws.com/websockets/v3"
	DefaultRequestTimeout       = 3 * time.Second
	DefaultSubscribeTimeout     = 8 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultWriteTimeout         = 10 * time.Second
	DefaultChannelBufferSize    = 1000
	DefaultCatalogTimeout       = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRefreshInterval      = 10 * time.Minute
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultMaxBufferSize        = 1_000_000
	DefaultPollInterval         = time.Minute
	DefaultPollConcurrency      = 8
	DefaultPollTimeout          = 10 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *GatewayConfig) applyDefaults() {
	// Deriv defaults
	if c.Deriv.Endpoint == "" {
		c.Deriv.Endpoint = DefaultEndpoint
	}

	// Channel defaults
	if c.Channel.RequestTimeout == 0 {
		c.Channel.RequestTimeout = DefaultRequestTimeout
	}
	if c.Channel.SubscribeTimeout == 0 {
		c.Channel.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Channel.PingInterval == 0 {
		c.Channel.PingInterval = DefaultPingInterval
	}
	if c.Channel.ReconnectDelay == 0 {
		c.Channel.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Channel.MaxReconnectAttempts == 0 {
		c.Channel.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}
	if c.Channel.BufferSize == 0 {
		c.Channel.BufferSize = DefaultChannelBufferSize
	}

	// Catalog defaults
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultMaxRetries
	}
	if c.Catalog.RefreshInterval == 0 {
		c.Catalog.RefreshInterval = DefaultRefreshInterval
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}
	if c.Writers.MaxBufferSize == 0 {
		c.Writers.MaxBufferSize = DefaultMaxBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
