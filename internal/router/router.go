package router

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tradewire/exstream/internal/protocol"
)

// AuthHandler consumes authentication verdict frames.
type AuthHandler interface {
	// HandleResponse reports whether it consumed the frame, so generic
	// result frames that belong to other requests fall through.
	HandleResponse(requestID string, success bool) bool
}

// CandleHandler consumes candle data frames.
type CandleHandler interface {
	// HandleTick applies one live tick. A rejected tick is a per-frame
	// error: logged by the router, never fatal.
	HandleTick(tick protocol.WireCandle, receivedAt time.Time) error

	// HandleSeedBatch seeds history from an uncorrelated batch.
	HandleSeedBatch(candles []protocol.WireCandle)
}

// BalanceHandler consumes balance-related frames.
type BalanceHandler interface {
	HandleProfile(msg protocol.ProfileMsg)
	HandleBalances(balances []protocol.WireBalance)
	HandleBalanceChanged(msg protocol.BalanceChangedMsg)
}

// Handlers wires the router's dispatch targets. A nil handler disables its
// kinds: the frames are skipped with a debug log.
type Handlers struct {
	Auth     AuthHandler
	Candles  CandleHandler
	Balances BalanceHandler

	// OnTimeSync receives the gateway's clock (ms since epoch).
	OnTimeSync func(serverMs int64)
}

// Stats contains runtime routing statistics.
type Stats struct {
	Received    int64
	Routed      int64
	ParseErrors int64
	Unknown     int64
	Pending     int
}

// Router dispatches inbound frames. A frame whose correlation id matches a
// pending request resolves that request and goes no further; everything
// else is dispatched by declared kind to exactly one handler. Route is
// driven by the owner's event loop and never panics the loop: per-frame
// errors are counted and logged.
type Router struct {
	pending  *PendingTable
	handlers Handlers
	logger   *slog.Logger

	mu          sync.Mutex
	received    int64
	routed      int64
	parseErrors int64
	unknown     int64
}

// New creates a router dispatching into handlers.
func New(pending *PendingTable, handlers Handlers, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		pending:  pending,
		handlers: handlers,
		logger:   logger,
	}
}

// Pending returns the correlation table.
func (r *Router) Pending() *PendingTable {
	return r.pending
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Received:    r.received,
		Routed:      r.routed,
		ParseErrors: r.parseErrors,
		Unknown:     r.unknown,
		Pending:     r.pending.Len(),
	}
}

// Route parses and dispatches a single inbound message.
func (r *Router) Route(data []byte, receivedAt time.Time) {
	r.count(&r.received)

	frame, err := protocol.ParseFrame(data)
	if err != nil {
		r.parseError("frame", err)
		return
	}

	// Correlation match pre-empts kind dispatch entirely.
	if frame.RequestID != "" && r.pending.Resolve(frame.RequestID, frame) {
		r.count(&r.routed)
		return
	}

	switch frame.Name {
	case protocol.KindAuthenticated:
		var ok bool
		if err := json.Unmarshal(frame.Msg, &ok); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Auth == nil {
			r.skip(frame.Name)
			return
		}
		if r.handlers.Auth.HandleResponse(frame.RequestID, ok) {
			r.count(&r.routed)
		} else {
			r.logger.Debug("unmatched authenticated frame", "request_id", frame.RequestID)
		}

	case protocol.KindResult:
		var res protocol.ResultMsg
		if err := json.Unmarshal(frame.Msg, &res); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		// A result can be the second accepted login shape.
		if r.handlers.Auth != nil && r.handlers.Auth.HandleResponse(frame.RequestID, res.Success) {
			r.count(&r.routed)
			return
		}
		r.logger.Debug("unmatched result frame",
			"request_id", frame.RequestID,
			"success", res.Success,
		)

	case protocol.KindTimeSync:
		var ms int64
		if err := json.Unmarshal(frame.Msg, &ms); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.OnTimeSync != nil {
			r.handlers.OnTimeSync(ms)
			r.count(&r.routed)
		}

	case protocol.KindCandleTick:
		var tick protocol.WireCandle
		if err := json.Unmarshal(frame.Msg, &tick); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Candles == nil {
			r.skip(frame.Name)
			return
		}
		if err := r.handlers.Candles.HandleTick(tick, receivedAt); err != nil {
			r.logger.Warn("tick rejected", "error", err)
			return
		}
		r.count(&r.routed)

	case protocol.KindFirstCandles, protocol.KindCandles:
		batch, err := protocol.ParseCandleBatch(frame.Msg)
		if err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Candles == nil {
			r.skip(frame.Name)
			return
		}
		r.handlers.Candles.HandleSeedBatch(batch)
		r.count(&r.routed)

	case protocol.KindProfile:
		var msg protocol.ProfileMsg
		if err := json.Unmarshal(frame.Msg, &msg); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Balances == nil {
			r.skip(frame.Name)
			return
		}
		r.handlers.Balances.HandleProfile(msg)
		r.count(&r.routed)

	case protocol.KindBalances:
		var balances []protocol.WireBalance
		if err := json.Unmarshal(frame.Msg, &balances); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Balances == nil {
			r.skip(frame.Name)
			return
		}
		r.handlers.Balances.HandleBalances(balances)
		r.count(&r.routed)

	case protocol.KindBalanceChanged:
		var msg protocol.BalanceChangedMsg
		if err := json.Unmarshal(frame.Msg, &msg); err != nil {
			r.parseError(frame.Name, err)
			return
		}
		if r.handlers.Balances == nil {
			r.skip(frame.Name)
			return
		}
		r.handlers.Balances.HandleBalanceChanged(msg)
		r.count(&r.routed)

	case protocol.KindFront, protocol.KindHeartbeat:
		// Keepalive and page noise, intentionally dropped.

	default:
		r.count(&r.unknown)
		r.logger.Warn("unknown message kind", "kind", frame.Name)
	}
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *Router) parseError(kind string, err error) {
	r.count(&r.parseErrors)
	r.logger.Warn("failed to parse message", "kind", kind, "error", err)
}

func (r *Router) skip(kind string) {
	r.logger.Debug("no handler configured, skipping", "kind", kind)
}
