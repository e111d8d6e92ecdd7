package config

import "time"

// Config is the root configuration for an exstream client instance.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Requests  RequestsConfig  `yaml:"requests"`
	Candles   CandlesConfig   `yaml:"candles"`
	Balances  BalancesConfig  `yaml:"balances"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Watch     []WatchConfig   `yaml:"watch"`
}

// WatchConfig selects one instrument's candle streams to subscribe at
// startup. An empty watch list connects without subscribing.
type WatchConfig struct {
	ActiveID int   `yaml:"active_id"`
	Sizes    []int `yaml:"sizes"` // bucket sizes in seconds; empty means one-minute
}

// GatewayConfig holds the WebSocket gateway endpoint settings.
type GatewayConfig struct {
	URL               string        `yaml:"url"`    // wss:// endpoint, required
	Origin            string        `yaml:"origin"` // Origin header, optional
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BufferSize        int           `yaml:"buffer_size"` // inbound message channel capacity
}

// ReconnectConfig holds the fixed-delay reconnection policy.
type ReconnectConfig struct {
	Delay       time.Duration `yaml:"delay"`        // fixed wait between attempts, no backoff growth
	MaxAttempts int           `yaml:"max_attempts"` // consecutive failures allowed before terminal
	AuthRetries int           `yaml:"auth_retries"` // post-reconnect re-auth attempts before giving up
}

// RequestsConfig holds correlated request/response settings.
type RequestsConfig struct {
	Timeout time.Duration `yaml:"timeout"` // deadline for correlated requests, auth included
}

// CandlesConfig holds candle store settings.
type CandlesConfig struct {
	HistoryLimit int `yaml:"history_limit"` // closed candles retained per stream
	SeedCount    int `yaml:"seed_count"`    // candles requested per historical fetch
}

// BalancesConfig holds balance tracker settings.
type BalancesConfig struct {
	RefreshDelay time.Duration `yaml:"refresh_delay"` // wait before the post-switch refresh
}

// ArchiveConfig holds the optional closed-candle archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
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
