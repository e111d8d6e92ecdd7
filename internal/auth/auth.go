// Package auth implements the gateway's in-band session authentication.
//
// Login happens over the established WebSocket: the machine sends one
// correlated authenticate command and waits for the gateway's verdict. The
// gateway answers in one of two shapes, a dedicated "authenticated" frame
// or a generic "result" frame, both carrying the attempt's correlation id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/exstream/internal/protocol"
)

// Errors
var (
	ErrAuthTimeout  = errors.New("authentication timed out")
	ErrAuthRejected = errors.New("authentication rejected by gateway")
	ErrAuthInFlight = errors.New("authentication already in flight")
	ErrAuthAborted  = errors.New("authentication aborted by disconnect")
)

// State is the machine's position in the login flow.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingResponse
	StateAuthenticated
)

// String returns the state name used in logs and status output.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// SendFunc writes one encoded command to the gateway.
type SendFunc func(data []byte) error

// Machine drives the login handshake for one logical connection. At most
// one attempt is in flight; responses are matched by correlation id and
// resolve the attempt exactly once.
type Machine struct {
	send    SendFunc
	timeout time.Duration
	logger  *slog.Logger
	newID   func() string

	mu        sync.Mutex
	state     State
	requestID string     // correlation id of the in-flight attempt
	resultCh  chan error // receives the in-flight outcome, buffered
}

// NewMachine creates an authentication machine sending through send.
func NewMachine(send SendFunc, timeout time.Duration, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Machine{
		send:    send,
		timeout: timeout,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether the session is established.
func (m *Machine) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// Authenticate sends the login command and blocks until the gateway
// answers, the deadline elapses, or ctx is cancelled. Calling while already
// authenticated is a no-op success.
func (m *Machine) Authenticate(ctx context.Context, ssid string) error {
	m.mu.Lock()
	switch m.state {
	case StateAuthenticated:
		m.mu.Unlock()
		return nil
	case StateAwaitingResponse:
		m.mu.Unlock()
		return ErrAuthInFlight
	}

	id := m.newID()
	resultCh := make(chan error, 1)
	m.state = StateAwaitingResponse
	m.requestID = id
	m.resultCh = resultCh
	m.mu.Unlock()

	data, err := protocol.NewAuthenticate(ssid, id).Encode()
	if err != nil {
		m.expire(id)
		return err
	}
	if err := m.send(data); err != nil {
		m.expire(id)
		return fmt.Errorf("send authenticate: %w", err)
	}

	m.logger.Debug("authentication sent", "request_id", id)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-resultCh:
		return err
	case <-timer.C:
		if m.expire(id) {
			m.logger.Warn("authentication timed out", "request_id", id, "timeout", m.timeout)
			return ErrAuthTimeout
		}
		// Resolved in the same instant; the outcome is already buffered.
		return <-resultCh
	case <-ctx.Done():
		if m.expire(id) {
			return ctx.Err()
		}
		return <-resultCh
	}
}

// HandleResponse feeds one auth-relevant frame into the machine. It matches
// by correlation id and reports whether it consumed the frame, so the
// router can fall through on generic result frames that belong to other
// requests. A second response for an already-resolved attempt is ignored.
func (m *Machine) HandleResponse(requestID string, success bool) bool {
	m.mu.Lock()
	if m.state != StateAwaitingResponse || requestID == "" || requestID != m.requestID {
		m.mu.Unlock()
		return false
	}

	ch := m.resultCh
	if success {
		m.state = StateAuthenticated
		ch <- nil
	} else {
		m.state = StateUnauthenticated
		ch <- ErrAuthRejected
	}
	m.requestID = ""
	m.resultCh = nil
	m.mu.Unlock()

	if success {
		m.logger.Info("authenticated", "request_id", requestID)
	} else {
		m.logger.Warn("authentication rejected", "request_id", requestID)
	}
	return true
}

// Reset returns the machine to Unauthenticated. Invoked on disconnect; an
// in-flight attempt fails with ErrAuthAborted.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.state == StateAwaitingResponse && m.resultCh != nil {
		m.resultCh <- ErrAuthAborted
	}
	m.state = StateUnauthenticated
	m.requestID = ""
	m.resultCh = nil
	m.mu.Unlock()
}

// expire clears the attempt identified by id if it is still in flight.
// Returns false when a response already resolved it.
func (m *Machine) expire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingResponse || m.requestID != id {
		return false
	}
	m.state = StateUnauthenticated
	m.requestID = ""
	m.resultCh = nil
	return true
}
