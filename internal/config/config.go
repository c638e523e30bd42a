package config

import "time"

// Config is the full syncd configuration.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance" envPrefix:"INSTANCE_"`
	Gateway   GatewayConfig   `yaml:"gateway" envPrefix:"GATEWAY_"`
	Database  DBConfig        `yaml:"database" envPrefix:"DATABASE_"`
	Health    HealthConfig    `yaml:"health" envPrefix:"HEALTH_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Audit     AuditConfig     `yaml:"audit" envPrefix:"AUDIT_"`
	Notify    NotifyConfig    `yaml:"notify" envPrefix:"NOTIFY_"`
	Status    StatusConfig    `yaml:"status" envPrefix:"STATUS_"`
}

// InstanceConfig identifies this syncd instance.
type InstanceConfig struct {
	ID string `yaml:"id" env:"ID"`
}

// GatewayConfig configures the change-feed gateway connection.
type GatewayConfig struct {
	URL              string        `yaml:"url" env:"URL"`
	AuthToken        string        `yaml:"auth_token" env:"AUTH_TOKEN"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	CommandTimeout   time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	PingInterval     time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout      time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
	EventBufferSize  int           `yaml:"event_buffer_size" env:"EVENT_BUFFER_SIZE"`
}

// DBConfig configures the audit store database.
type DBConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
}

// HealthConfig configures the connection health monitor.
type HealthConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
}

// ReconnectConfig configures the reconnection controller.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// AuditConfig configures the audit log batcher.
type AuditConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES"`
	MaxQueue      int           `yaml:"max_queue" env:"MAX_QUEUE"`
	// PersistDisabled switches off database-backed audit persistence while
	// keeping the in-memory pipeline running.
	PersistDisabled bool `yaml:"persist_disabled" env:"PERSIST_DISABLED"`
}

// NotifyConfig configures change notifications.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Quiet hours suppress notifications; a window with start after end
	// wraps past midnight (e.g. 22:00-07:00).
	QuietStart string `yaml:"quiet_start" env:"QUIET_START"`
	QuietEnd   string `yaml:"quiet_end" env:"QUIET_END"`
}

// StatusConfig configures the HTTP status endpoint.
type StatusConfig struct {
	Port int    `yaml:"port" env:"PORT"`
	Path string `yaml:"path" env:"PATH"`
}
