package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// ConnectError reports a failed handshake with the attempted endpoint.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ReconnectLimitError is terminal: the supervisor exhausted its attempt
// ceiling and will make no further attempts.
type ReconnectLimitError struct {
	Attempts int
	LastErr  error
}

func (e *ReconnectLimitError) Error() string {
	return fmt.Sprintf("reconnect limit reached after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ReconnectLimitError) Unwrap() error { return e.LastErr }

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures one socket generation.
type ClientConfig struct {
	URL               string        // WebSocket URL (wss://...)
	Origin            string        // Origin header value, empty to omit
	HandshakeTimeout  time.Duration // Dial deadline
	WriteTimeout      time.Duration // Write deadline for sends
	HeartbeatInterval time.Duration // Outbound keepalive cadence
	BufferSize        int           // Message channel capacity

	// HeartbeatPayload builds the application-level keepalive frame sent
	// every HeartbeatInterval. Nil disables outbound heartbeats; protocol
	// ping/pong still runs.
	HeartbeatPayload func() []byte
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		BufferSize:        1000,
	}
}

// SupervisorConfig configures reconnection across socket generations.
type SupervisorConfig struct {
	Client      ClientConfig
	RetryDelay  time.Duration // Fixed wait between attempts, no backoff growth
	MaxAttempts int           // Consecutive failed attempts before terminal; 0 disables reconnection
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Client:      DefaultClientConfig(),
		RetryDelay:  5 * time.Second,
		MaxAttempts: 5,
	}
}

// EventType classifies supervisor lifecycle events.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventReconnected
	EventReconnectFailed
)

// String returns the event name used in logs.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventReconnectFailed:
		return "reconnect_failed"
	default:
		return "unknown"
	}
}

// Event is one supervisor lifecycle transition.
type Event struct {
	Type    EventType
	Err     error // Cause for Disconnected / ReconnectFailed, nil otherwise
	Attempt int   // Attempt number for Reconnected, 0 otherwise
}
