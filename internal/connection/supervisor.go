package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const eventBuffer = 16

// Supervisor owns the connection lifecycle across socket generations. On
// abnormal closure it redials after a fixed delay up to a bounded number of
// consecutive attempts; success resets the counter, exhaustion is terminal.
// Consumers read from stable Messages and Events channels that survive
// reconnects.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	// newClient is swapped in tests to inject scripted connections.
	newClient func(ClientConfig, *slog.Logger) Client

	messages chan TimestampedMessage
	events   chan Event
	done     chan struct{}

	mu      sync.RWMutex
	current Client
	started bool
	closed  bool
}

// NewSupervisor creates a supervisor. Start must be called before use.
func NewSupervisor(cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		messages:  make(chan TimestampedMessage, cfg.Client.BufferSize),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}
}

// Start dials the first connection. A handshake failure is returned to the
// caller directly; the reconnect policy only covers failures after a
// connection has been established.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	c := s.newClient(s.cfg.Client, s.logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = c
	s.started = true
	s.mu.Unlock()

	s.emit(Event{Type: EventConnected})
	go s.run()

	return nil
}

// Send writes raw bytes through the current connection.
func (s *Supervisor) Send(data []byte) error {
	s.mu.RLock()
	c := s.current
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return ErrAlreadyClosed
	}
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(data)
}

// Messages returns the stable inbound message channel.
func (s *Supervisor) Messages() <-chan TimestampedMessage {
	return s.messages
}

// Events returns the lifecycle event channel.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// IsConnected reports whether the current generation is up.
func (s *Supervisor) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.IsConnected()
}

// Close is an intentional shutdown: it disables reconnection and closes the
// current connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.current
	s.mu.Unlock()

	close(s.done)

	if c != nil {
		return c.Close()
	}
	return nil
}

func (s *Supervisor) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// run pumps messages from the current generation and redials when it dies.
func (s *Supervisor) run() {
	for {
		s.mu.RLock()
		c := s.current
		s.mu.RUnlock()

		err := s.pump(c)
		if s.isClosed() {
			return
		}

		c.Close()
		s.logger.Warn("connection lost", "error", err)
		s.emit(Event{Type: EventDisconnected, Err: err})

		if next := s.redial(err); next == nil {
			return
		}
	}
}

// pump forwards one generation's messages until it fails or the supervisor
// closes.
func (s *Supervisor) pump(c Client) error {
	for {
		select {
		case <-s.done:
			return nil
		case msg := <-c.Messages():
			select {
			case s.messages <- msg:
			case <-s.done:
				return nil
			}
		case err := <-c.Errors():
			return err
		}
	}
}

// redial attempts reconnection with a fixed delay between attempts. It
// returns the new connection, or nil when the supervisor closed or the
// attempt ceiling was reached.
func (s *Supervisor) redial(cause error) Client {
	lastErr := cause

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		select {
		case <-s.done:
			return nil
		case <-time.After(s.cfg.RetryDelay):
		}

		s.logger.Info("attempting reconnection",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
		)

		c := s.newClient(s.cfg.Client, s.logger)
		if err := c.Connect(context.Background()); err != nil {
			lastErr = err
			s.logger.Warn("reconnection failed",
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		s.mu.Lock()
		s.current = c
		s.mu.Unlock()

		s.logger.Info("reconnected", "attempt", attempt)
		s.emit(Event{Type: EventReconnected, Attempt: attempt})
		return c
	}

	terminal := &ReconnectLimitError{Attempts: s.cfg.MaxAttempts, LastErr: lastErr}
	s.logger.Error("reconnect limit reached",
		"attempts", s.cfg.MaxAttempts,
		"error", lastErr,
	)
	s.emit(Event{Type: EventReconnectFailed, Err: terminal})
	return nil
}
