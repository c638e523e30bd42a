package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultCommandTimeout   = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPongTimeout      = 60 * time.Second
	DefaultEventBufferSize  = 4096
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultProbeInterval    = 20 * time.Second
	DefaultProbeTimeout     = 10 * time.Second
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultMaxAttempts      = 5
	DefaultFlushInterval    = 5 * time.Second
	DefaultBatchSize        = 50
	DefaultMaxRetries       = 3
	DefaultMaxQueue         = 10000
	DefaultQuietStart       = "22:00"
	DefaultQuietEnd         = "07:00"
	DefaultStatusPort       = 8080
	DefaultStatusPath       = "/status"
)

func (c *Config) applyDefaults() {
	// Gateway defaults
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.CommandTimeout == 0 {
		c.Gateway.CommandTimeout = DefaultCommandTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = DefaultPongTimeout
	}
	if c.Gateway.EventBufferSize == 0 {
		c.Gateway.EventBufferSize = DefaultEventBufferSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Health defaults
	if c.Health.ProbeInterval == 0 {
		c.Health.ProbeInterval = DefaultProbeInterval
	}
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = DefaultProbeTimeout
	}

	// Reconnect defaults
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	// Audit defaults
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultFlushInterval
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultBatchSize
	}
	if c.Audit.MaxRetries == 0 {
		c.Audit.MaxRetries = DefaultMaxRetries
	}
	if c.Audit.MaxQueue == 0 {
		c.Audit.MaxQueue = DefaultMaxQueue
	}

	// Notify defaults
	if c.Notify.QuietStart == "" {
		c.Notify.QuietStart = DefaultQuietStart
	}
	if c.Notify.QuietEnd == "" {
		c.Notify.QuietEnd = DefaultQuietEnd
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Status.Path == "" {
		c.Status.Path = DefaultStatusPath
	}
}
