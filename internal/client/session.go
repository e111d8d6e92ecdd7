package client

import (
	"context"
	"fmt"

	"github.com/tradewire/exstream/internal/connection"
)

// runLoop drives the session: every inbound frame and every lifecycle
// event flows through here in arrival order.
func (c *Client) runLoop() {
	defer close(c.loopEnd)

	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.supervisor.Messages():
			c.router.Route(msg.Data, msg.ReceivedAt)
		case ev := <-c.supervisor.Events():
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev connection.Event) {
	switch ev.Type {
	case connection.EventConnected:
		c.logger.Debug("transport connected")

	case connection.EventDisconnected:
		// Pending requests are abandoned, not rejected; their callers
		// unblock through their own deadlines. Auth must restart from
		// scratch on the next connection.
		c.pending.Clear()
		c.auth.Reset()

	case connection.EventReconnected:
		c.mu.Lock()
		c.generation++
		gen := c.generation
		ssid := c.ssid
		c.mu.Unlock()

		// Recovery runs detached: the loop must keep routing so the
		// re-auth reply can be consumed at all.
		go c.recoverSession(gen, ssid, ev.Attempt)

	case connection.EventReconnectFailed:
		c.setTerminal(ev.Err)
	}
}

// recoverSession re-authenticates and replays subscriptions after a
// reconnect. Authentication gets a bounded number of attempts; using
// them up closes the session for good.
func (c *Client) recoverSession(gen int, ssid string, reconnectAttempt int) {
	retries := c.cfg.Reconnect.AuthRetries
	if retries <= 0 {
		retries = 1
	}

	var err error
	for i := 1; i <= retries; i++ {
		if c.stale(gen) {
			return
		}
		if err = c.auth.Authenticate(context.Background(), ssid); err == nil {
			break
		}
		c.logger.Warn("post-reconnect authentication failed",
			"attempt", i,
			"retries", retries,
			"error", err,
		)
	}
	if err != nil {
		if c.stale(gen) {
			return
		}
		c.fail(fmt.Errorf("session recovery: %w", err))
		return
	}

	c.registry.Replay()
	c.logger.Info("session recovered",
		"reconnect_attempt", reconnectAttempt,
		"subscriptions", c.registry.Len(),
	)
}

// stale reports whether this recovery lost ownership of the session to
// a close or a newer reconnect.
func (c *Client) stale(gen int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed || gen != c.generation
}
