package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}
	if c.Gateway.BufferSize < 1 {
		return errors.New("gateway.buffer_size must be >= 1")
	}

	if c.Reconnect.Delay <= 0 {
		return errors.New("reconnect.delay must be > 0")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.AuthRetries < 1 {
		return errors.New("reconnect.auth_retries must be >= 1")
	}

	if c.Requests.Timeout <= 0 {
		return errors.New("requests.timeout must be > 0")
	}

	if c.Candles.HistoryLimit < 1 {
		return errors.New("candles.history_limit must be >= 1")
	}
	if c.Candles.SeedCount < 1 {
		return errors.New("candles.seed_count must be >= 1")
	}

	if c.Archive.Enabled {
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
	}

	for i, w := range c.Watch {
		if w.ActiveID < 1 {
			return fmt.Errorf("watch[%d].active_id must be >= 1", i)
		}
		for _, size := range w.Sizes {
			if size < 1 {
				return fmt.Errorf("watch[%d] has invalid size %d", i, size)
			}
		}
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
