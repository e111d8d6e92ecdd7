package router

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tradewire/exstream/internal/protocol"
)

// ErrRequestTimeout is delivered to a pending request whose deadline
// elapsed before a matching response arrived.
var ErrRequestTimeout = errors.New("request timed out")

// SuccessFunc receives the frame that resolved a pending request.
type SuccessFunc func(frame protocol.Frame)

// FailureFunc receives the terminal error for a pending request.
type FailureFunc func(err error)

type pendingEntry struct {
	onSuccess SuccessFunc
	onFailure FailureFunc
	timer     *time.Timer
}

// PendingTable correlates outbound requests with their inbound responses.
// Every entry resolves exactly once: matching response, or deadline, never
// both. Clear drops entries without invoking callbacks.
type PendingTable struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*pendingEntry
}

// NewPendingTable creates a table with the given default deadline.
func NewPendingTable(timeout time.Duration, logger *slog.Logger) *PendingTable {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PendingTable{
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]*pendingEntry),
	}
}

// Add registers a request under the default deadline.
func (p *PendingTable) Add(id string, onSuccess SuccessFunc, onFailure FailureFunc) {
	p.AddWithTimeout(id, p.timeout, onSuccess, onFailure)
}

// AddWithTimeout registers a request with an explicit deadline.
func (p *PendingTable) AddWithTimeout(id string, timeout time.Duration, onSuccess SuccessFunc, onFailure FailureFunc) {
	entry := &pendingEntry{
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
	entry.timer = time.AfterFunc(timeout, func() {
		p.expire(id)
	})

	p.mu.Lock()
	if old, ok := p.entries[id]; ok {
		// Duplicate registration keeps the newest entry.
		old.timer.Stop()
		p.logger.Warn("pending request id reused", "request_id", id)
	}
	p.entries[id] = entry
	p.mu.Unlock()
}

// Resolve completes the request matching frame's correlation id. Returns
// false when no such request is pending, including late responses for
// requests that already timed out.
func (p *PendingTable) Resolve(id string, frame protocol.Frame) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
		entry.timer.Stop()
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	if entry.onSuccess != nil {
		entry.onSuccess(frame)
	}
	return true
}

// Fail completes the request with an error instead of a response.
func (p *PendingTable) Fail(id string, err error) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
		entry.timer.Stop()
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	if entry.onFailure != nil {
		entry.onFailure(err)
	}
	return true
}

// Clear drops every pending request without invoking callbacks. Used on
// disconnect: abandonment, not rejection.
func (p *PendingTable) Clear() {
	p.mu.Lock()
	n := len(p.entries)
	for id, entry := range p.entries {
		entry.timer.Stop()
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if n > 0 {
		p.logger.Debug("cleared pending requests", "count", n)
	}
}

// Len returns the number of outstanding requests.
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// expire fires the deadline for id if it is still pending.
func (p *PendingTable) expire(id string) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if !ok {
		return
	}

	p.logger.Warn("pending request timed out", "request_id", id)
	if entry.onFailure != nil {
		entry.onFailure(ErrRequestTimeout)
	}
}
