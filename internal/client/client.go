// Package client is the composition root: it wires the connection
// supervisor, authentication machine, router, subscription registry,
// candle store, and balance tracker into the one object external callers
// touch. Instances are independent; nothing here is global.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/exstream/internal/auth"
	"github.com/tradewire/exstream/internal/balance"
	"github.com/tradewire/exstream/internal/candle"
	"github.com/tradewire/exstream/internal/config"
	"github.com/tradewire/exstream/internal/connection"
	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
	"github.com/tradewire/exstream/internal/router"
	"github.com/tradewire/exstream/internal/subscription"
)

// ErrClosed is returned for any operation after Disconnect.
var ErrClosed = errors.New("client closed")

// Client is the facade over one gateway session.
type Client struct {
	cfg    config.Config
	logger *slog.Logger

	supervisor *connection.Supervisor
	auth       *auth.Machine
	pending    *router.PendingTable
	router     *router.Router
	registry   *subscription.Registry
	store      *candle.Store
	balances   *balance.Tracker

	newID func() string

	stop    chan struct{}
	loopEnd chan struct{}

	mu         sync.RWMutex
	started    bool
	closed     bool
	ssid       string
	generation int
	serverMs   int64
	terminal   error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client and every component it owns.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds the full component graph from cfg. The client owns every
// component it creates; Disconnect tears all of them down.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		logger:  slog.Default(),
		newID:   uuid.NewString,
		stop:    make(chan struct{}),
		loopEnd: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.supervisor = connection.NewSupervisor(connection.SupervisorConfig{
		Client: connection.ClientConfig{
			URL:               cfg.Gateway.URL,
			Origin:            cfg.Gateway.Origin,
			HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
			WriteTimeout:      cfg.Gateway.WriteTimeout,
			HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
			BufferSize:        cfg.Gateway.BufferSize,
			HeartbeatPayload:  heartbeatPayload,
		},
		RetryDelay:  cfg.Reconnect.Delay,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	}, c.logger)

	c.pending = router.NewPendingTable(cfg.Requests.Timeout, c.logger)
	c.auth = auth.NewMachine(c.supervisor.Send, cfg.Requests.Timeout, c.logger)
	c.registry = subscription.NewRegistry(c.supervisor.Send, c.logger)
	c.store = candle.NewStore(cfg.Candles.HistoryLimit, c.logger)
	c.balances = balance.NewTracker(c.supervisor.Send, c.pending, cfg.Balances.RefreshDelay, c.logger)

	c.router = router.New(c.pending, router.Handlers{
		Auth:       c.auth,
		Candles:    c.store,
		Balances:   c.balances,
		OnTimeSync: c.setServerTime,
	}, c.logger)

	return c
}

// heartbeatPayload builds the gateway's application-level keepalive.
func heartbeatPayload() []byte {
	data, err := protocol.NewHeartbeat(time.Now()).Encode()
	if err != nil {
		return nil
	}
	return data
}

// EnsureConnection connects and authenticates, in that order, exactly
// once. Calling it on a live session only re-checks authentication,
// which is a no-op when the session is already authenticated.
func (c *Client) EnsureConnection(ctx context.Context, ssid string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return c.auth.Authenticate(ctx, ssid)
	}
	c.ssid = ssid
	c.mu.Unlock()

	if err := c.supervisor.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	// The loop must be routing before the login reply can be consumed.
	go c.runLoop()

	if err := c.auth.Authenticate(ctx, ssid); err != nil {
		return err
	}

	c.logger.Info("session established", "url", c.cfg.Gateway.URL)
	return nil
}

// Disconnect is an intentional teardown: it disables reconnection,
// closes the socket, clears every store, and abandons pending requests
// without resolving them. The client cannot be reused afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	close(c.stop)
	err := c.supervisor.Close()

	c.pending.Clear()
	c.auth.Reset()
	c.registry.Clear()
	c.store.Clear()
	c.balances.Clear()

	if started {
		<-c.loopEnd
	}

	c.logger.Info("client disconnected")
	return err
}

// Status is a point-in-time summary of the session.
type Status struct {
	Connected       bool
	AuthState       string
	Subscriptions   []model.CandleKey
	PendingRequests int
	BalanceCount    int
	ActiveBalance   int64 // 0 when no balance is active
	ServerTimeMs    int64 // last timeSync value, 0 before the first
	Candles         candle.Stats
	Routing         router.Stats
	Err             error // terminal error, nil while the session can recover
}

// Status reports the connection, auth, subscription, and balance state.
func (c *Client) Status() Status {
	c.mu.RLock()
	serverMs := c.serverMs
	terminal := c.terminal
	c.mu.RUnlock()

	st := Status{
		Connected:       c.supervisor.IsConnected(),
		AuthState:       c.auth.State().String(),
		Subscriptions:   c.registry.Snapshot(),
		PendingRequests: c.pending.Len(),
		BalanceCount:    len(c.balances.Balances()),
		ServerTimeMs:    serverMs,
		Candles:         c.store.Stats(),
		Routing:         c.router.Stats(),
		Err:             terminal,
	}
	if active, ok := c.balances.Active(); ok {
		st.ActiveBalance = active.ID
	}
	return st
}

// Balances returns the tracked balance set.
func (c *Client) Balances() []model.Balance {
	return c.balances.Balances()
}

// ActiveBalance returns the active balance, if one is set.
func (c *Client) ActiveBalance() (model.Balance, bool) {
	return c.balances.Active()
}

// SwitchBalanceMode optimistically switches the active balance to mode
// (1 real, 2 practice). Confirmation arrives asynchronously.
func (c *Client) SwitchBalanceMode(mode int) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.balances.SwitchByMode(mode)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) setServerTime(ms int64) {
	c.mu.Lock()
	c.serverMs = ms
	c.mu.Unlock()
}

func (c *Client) setTerminal(err error) {
	c.mu.Lock()
	if c.terminal == nil {
		c.terminal = err
	}
	c.mu.Unlock()
}

// fail records a terminal error and shuts the transport down. Used when
// session recovery cannot restore a usable session.
func (c *Client) fail(err error) {
	c.setTerminal(err)
	c.supervisor.Close()
}
