// Package subscription tracks the desired set of live candle streams.
//
// The registry is desired state, not connection state: it survives
// reconnects, and Replay re-issues the wire commands for every desired
// stream once a fresh session is authenticated.
package subscription

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
)

// SendFunc writes one encoded command to the gateway.
type SendFunc func(data []byte) error

// Registry holds the desired (instrument, size) set in insertion order.
type Registry struct {
	send   SendFunc
	logger *slog.Logger

	mu   sync.Mutex
	keys []model.CandleKey            // insertion order
	set  map[model.CandleKey]struct{} // membership
}

// NewRegistry creates a registry sending commands through send.
func NewRegistry(send SendFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		send:   send,
		logger: logger,
		set:    make(map[model.CandleKey]struct{}),
	}
}

// Subscribe sends the subscribe command for key and records it. Subscribing
// an already-desired key is a no-op. A send failure leaves the key
// unrecorded so the caller can retry.
func (r *Registry) Subscribe(key model.CandleKey) error {
	r.mu.Lock()
	if _, ok := r.set[key]; ok {
		r.mu.Unlock()
		r.logger.Debug("already subscribed", "active_id", key.ActiveID, "size", key.Size)
		return nil
	}
	r.mu.Unlock()

	if err := r.sendSubscribe(key); err != nil {
		return fmt.Errorf("subscribe %d/%d: %w", key.ActiveID, key.Size, err)
	}

	r.mu.Lock()
	if _, ok := r.set[key]; !ok {
		r.set[key] = struct{}{}
		r.keys = append(r.keys, key)
	}
	r.mu.Unlock()

	r.logger.Info("subscribed", "active_id", key.ActiveID, "size", key.Size)
	return nil
}

// Unsubscribe removes key from the desired set and sends the unsubscribe
// command. Returns false without touching the wire when the key was never
// subscribed. The key is removed even if the send fails: caller intent
// wins over a dying connection.
func (r *Registry) Unsubscribe(key model.CandleKey) (bool, error) {
	r.mu.Lock()
	if _, ok := r.set[key]; !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.set, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	err := r.sendUnsubscribe(key)
	if err != nil {
		err = fmt.Errorf("unsubscribe %d/%d: %w", key.ActiveID, key.Size, err)
	} else {
		r.logger.Info("unsubscribed", "active_id", key.ActiveID, "size", key.Size)
	}
	return true, err
}

// Contains reports whether key is desired.
func (r *Registry) Contains(key model.CandleKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[key]
	return ok
}

// Len returns the desired stream count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Snapshot returns the desired keys in insertion order.
func (r *Registry) Snapshot() []model.CandleKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.CandleKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// ActiveSizesFor returns the subscribed sizes for an instrument in
// insertion order.
func (r *Registry) ActiveSizesFor(activeID int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sizes []int
	for _, k := range r.keys {
		if k.ActiveID == activeID {
			sizes = append(sizes, k.Size)
		}
	}
	return sizes
}

// Clear empties the desired set without touching the wire.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.keys = nil
	r.set = make(map[model.CandleKey]struct{})
	r.mu.Unlock()
}

// Replay re-issues every desired subscription in insertion order after a
// reconnect. Each key is dropped then re-added so the gateway's own
// de-duplication guards re-trigger cleanly. Per-key failures are logged
// and the replay continues.
func (r *Registry) Replay() {
	keys := r.Snapshot()
	if len(keys) == 0 {
		return
	}

	r.logger.Info("replaying subscriptions", "count", len(keys))

	for _, key := range keys {
		if err := r.sendUnsubscribe(key); err != nil {
			r.logger.Warn("replay unsubscribe failed",
				"active_id", key.ActiveID,
				"size", key.Size,
				"error", err,
			)
		}
		if err := r.sendSubscribe(key); err != nil {
			r.logger.Warn("replay subscribe failed",
				"active_id", key.ActiveID,
				"size", key.Size,
				"error", err,
			)
		}
	}
}

func (r *Registry) sendSubscribe(key model.CandleKey) error {
	data, err := protocol.NewSubscribeCandles(key.ActiveID, key.Size).Encode()
	if err != nil {
		return err
	}
	return r.send(data)
}

func (r *Registry) sendUnsubscribe(key model.CandleKey) error {
	data, err := protocol.NewUnsubscribeCandles(key.ActiveID, key.Size).Encode()
	if err != nil {
		return err
	}
	return r.send(data)
}
