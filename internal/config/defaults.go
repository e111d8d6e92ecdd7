package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultBufferSize        = 1000

	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultAuthRetries          = 3

	DefaultRequestTimeout = 10 * time.Second

	DefaultHistoryLimit = 500
	DefaultSeedCount    = 100

	DefaultBalanceRefreshDelay = 1 * time.Second

	DefaultArchiveBatchSize     = 200
	DefaultArchiveFlushInterval = 5 * time.Second
	DefaultArchiveBufferSize    = 1000
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
)

func (c *Config) applyDefaults() {
	// Gateway defaults
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.HeartbeatInterval == 0 {
		c.Gateway.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultBufferSize
	}

	// Reconnect defaults
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if c.Reconnect.AuthRetries == 0 {
		c.Reconnect.AuthRetries = DefaultAuthRetries
	}

	// Requests defaults
	if c.Requests.Timeout == 0 {
		c.Requests.Timeout = DefaultRequestTimeout
	}

	// Candles defaults
	if c.Candles.HistoryLimit == 0 {
		c.Candles.HistoryLimit = DefaultHistoryLimit
	}
	if c.Candles.SeedCount == 0 {
		c.Candles.SeedCount = DefaultSeedCount
	}

	// Balances defaults
	if c.Balances.RefreshDelay == 0 {
		c.Balances.RefreshDelay = DefaultBalanceRefreshDelay
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}
	applyDBDefaults(&c.Archive.Database)
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
