package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}

	if !c.Audit.PersistDisabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.BaseDelay > c.Reconnect.MaxDelay {
		return fmt.Errorf("reconnect.base_delay (%s) cannot exceed max_delay (%s)",
			c.Reconnect.BaseDelay, c.Reconnect.MaxDelay)
	}

	if c.Health.ProbeTimeout >= c.Health.ProbeInterval {
		return fmt.Errorf("health.probe_timeout (%s) must be below probe_interval (%s)",
			c.Health.ProbeTimeout, c.Health.ProbeInterval)
	}

	if c.Audit.BatchSize < 1 {
		return errors.New("audit.batch_size must be >= 1")
	}
	if c.Audit.MaxQueue < c.Audit.BatchSize {
		return fmt.Errorf("audit.max_queue (%d) must be >= batch_size (%d)",
			c.Audit.MaxQueue, c.Audit.BatchSize)
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
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
	if db.SSLMode == "" {
		return fmt.Errorf("%s.sslmode is required", prefix)
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
