package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{}
	c.Instance.ID = "syncd-test"
	c.Gateway.URL = "wss://gateway.example.com/feed"
	c.Database = DBConfig{
		Host:     "localhost",
		Name:     "boardsync",
		User:     "app",
		Password: "secret",
	}
	c.applyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.applyDefaults()

	if c.Gateway.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %s, want %s", c.Gateway.PingInterval, DefaultPingInterval)
	}
	if c.Health.ProbeInterval != DefaultProbeInterval {
		t.Errorf("ProbeInterval = %s, want %s", c.Health.ProbeInterval, DefaultProbeInterval)
	}
	if c.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", c.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if c.Audit.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", c.Audit.BatchSize, DefaultBatchSize)
	}
	if c.Notify.QuietStart != DefaultQuietStart || c.Notify.QuietEnd != DefaultQuietEnd {
		t.Errorf("quiet hours = %s-%s, want %s-%s",
			c.Notify.QuietStart, c.Notify.QuietEnd, DefaultQuietStart, DefaultQuietEnd)
	}
	if c.Status.Port != DefaultStatusPort {
		t.Errorf("Status.Port = %d, want %d", c.Status.Port, DefaultStatusPort)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	c := &Config{}
	c.Audit.BatchSize = 7
	c.Reconnect.MaxDelay = time.Minute
	c.applyDefaults()

	if c.Audit.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", c.Audit.BatchSize)
	}
	if c.Reconnect.MaxDelay != time.Minute {
		t.Errorf("MaxDelay = %s, want 1m", c.Reconnect.MaxDelay)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing instance id", func(c *Config) { c.Instance.ID = "" }, "instance.id"},
		{"missing gateway url", func(c *Config) { c.Gateway.URL = "" }, "gateway.url"},
		{"missing db host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing db password", func(c *Config) { c.Database.Password = "" }, "database.password"},
		{"missing db sslmode", func(c *Config) { c.Database.SSLMode = "" }, "database.sslmode"},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 20 }, "min_conns"},
		{"zero reconnect attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, "max_attempts"},
		{"base delay above max", func(c *Config) { c.Reconnect.BaseDelay = time.Minute }, "base_delay"},
		{"probe timeout above interval", func(c *Config) { c.Health.ProbeTimeout = time.Minute }, "probe_timeout"},
		{"queue below batch size", func(c *Config) { c.Audit.MaxQueue = 10 }, "max_queue"},
		{"port out of range", func(c *Config) { c.Status.Port = 70000 }, "status.port"},
	}

	for _, tt := range tests {
		c := validConfig()
		tt.mutate(c)
		err := c.Validate()
		if err == nil {
			t.Errorf("%s: Validate succeeded, want error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %q, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestValidate_PersistDisabledSkipsDatabase(t *testing.T) {
	c := validConfig()
	c.Database = DBConfig{}
	c.Audit.PersistDisabled = true

	if err := c.Validate(); err != nil {
		t.Errorf("Validate with persist_disabled failed: %v", err)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GW_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
instance:
  id: syncd-1
gateway:
  url: wss://gateway.example.com/feed
  auth_token: ${TEST_GW_TOKEN}
  event_buffer_size: 512
audit:
  persist_disabled: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.AuthToken != "tok-123" {
		t.Errorf("AuthToken = %s, want tok-123", cfg.Gateway.AuthToken)
	}
	if cfg.Gateway.EventBufferSize != 512 {
		t.Errorf("EventBufferSize = %d, want 512", cfg.Gateway.EventBufferSize)
	}
	if !cfg.Audit.PersistDisabled {
		t.Error("PersistDisabled not parsed")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load succeeded on missing file, want error")
	}
}

func TestApplyEnv_Overlay(t *testing.T) {
	t.Setenv("BOARDSYNC_INSTANCE_ID", "env-instance")
	t.Setenv("BOARDSYNC_GATEWAY_URL", "wss://env.example.com/feed")
	t.Setenv("BOARDSYNC_RECONNECT_MAX_ATTEMPTS", "9")
	t.Setenv("BOARDSYNC_HEALTH_PROBE_INTERVAL", "45s")

	cfg := &Config{}
	cfg.Gateway.URL = "wss://file.example.com/feed"
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Instance.ID != "env-instance" {
		t.Errorf("Instance.ID = %s, want env-instance", cfg.Instance.ID)
	}
	if cfg.Gateway.URL != "wss://env.example.com/feed" {
		t.Errorf("Gateway.URL = %s, want env value to win", cfg.Gateway.URL)
	}
	if cfg.Reconnect.MaxAttempts != 9 {
		t.Errorf("MaxAttempts = %d, want 9", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Health.ProbeInterval != 45*time.Second {
		t.Errorf("ProbeInterval = %s, want 45s", cfg.Health.ProbeInterval)
	}
}

func TestLoadAndValidate_NoFile(t *testing.T) {
	t.Setenv("BOARDSYNC_INSTANCE_ID", "env-only")
	t.Setenv("BOARDSYNC_GATEWAY_URL", "wss://env.example.com/feed")
	t.Setenv("BOARDSYNC_AUDIT_PERSIST_DISABLED", "true")

	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Health.ProbeInterval != DefaultProbeInterval {
		t.Errorf("defaults not applied: ProbeInterval = %s", cfg.Health.ProbeInterval)
	}
}
