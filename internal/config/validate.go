package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Deriv.AppID < 1 {
		return errors.New("deriv.app_id is required")
	}
	if u, err := url.Parse(c.Deriv.Endpoint); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("deriv.endpoint must be a ws:// or wss:// URL, got %q", c.Deriv.Endpoint)
	}
	if c.Deriv.Token != "" && c.Deriv.TokenFile != "" {
		return errors.New("deriv.token and deriv.token_file are mutually exclusive")
	}

	if c.Channel.RequestTimeout <= 0 {
		return errors.New("channel.request_timeout must be > 0")
	}
	if c.Channel.SubscribeTimeout <= 0 {
		return errors.New("channel.subscribe_timeout must be > 0")
	}
	if c.Channel.PingInterval < 0 {
		return errors.New("channel.ping_interval must be >= 0")
	}
	if c.Channel.MaxReconnectAttempts < 1 {
		return errors.New("channel.max_reconnect_attempts must be >= 1")
	}

	if c.Catalog.BaseURL == "" && len(c.Poller.Symbols) == 0 {
		return errors.New("catalog.base_url is required when poller.symbols is empty")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}
	if c.Writers.MaxBufferSize < c.Writers.BufferSize {
		return fmt.Errorf("writers.max_buffer_size (%d) cannot be below buffer_size (%d)",
			c.Writers.MaxBufferSize, c.Writers.BufferSize)
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	if c.Poller.Interval < c.Poller.Timeout {
		return fmt.Errorf("poller.interval (%s) cannot be shorter than poller.timeout (%s)",
			c.Poller.Interval, c.Poller.Timeout)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
