package client

import (
	"context"
	"fmt"
	"time"

	"github.com/tradewire/exstream/internal/candle"
	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
)

// SubscribeCandles subscribes the instrument at each bucket size. Sizes
// already subscribed are no-ops. Without explicit sizes the one-minute
// stream is subscribed.
func (c *Client) SubscribeCandles(activeID int, sizes ...int) error {
	if c.isClosed() {
		return ErrClosed
	}
	if len(sizes) == 0 {
		sizes = []int{candle.DefaultBucketSize}
	}

	for _, size := range sizes {
		key := model.CandleKey{ActiveID: activeID, Size: size}
		if err := c.registry.Subscribe(key); err != nil {
			return fmt.Errorf("subscribe %d/%ds: %w", activeID, size, err)
		}
	}
	return nil
}

// UnsubscribeResult reports a multi-size unsubscribe outcome.
type UnsubscribeResult struct {
	Unsubscribed  []int // sizes removed by this call
	NotSubscribed []int // requested sizes that were not subscribed
	AllSizes      []int // sizes still subscribed for the instrument
}

// UnsubscribeCandles removes the instrument's subscriptions at the given
// sizes, or at every subscribed size when none are given. Keys leave the
// desired set even when the wire command fails; the first send failure
// is returned alongside the result.
func (c *Client) UnsubscribeCandles(activeID int, sizes ...int) (UnsubscribeResult, error) {
	var res UnsubscribeResult
	if c.isClosed() {
		return res, ErrClosed
	}
	if len(sizes) == 0 {
		sizes = c.registry.ActiveSizesFor(activeID)
	}

	var firstErr error
	for _, size := range sizes {
		removed, err := c.registry.Unsubscribe(model.CandleKey{ActiveID: activeID, Size: size})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unsubscribe %d/%ds: %w", activeID, size, err)
		}
		if removed {
			res.Unsubscribed = append(res.Unsubscribed, size)
		} else {
			res.NotSubscribed = append(res.NotSubscribed, size)
		}
	}
	res.AllSizes = c.registry.ActiveSizesFor(activeID)
	return res, firstErr
}

// RequestHistoricalCandles fetches seed history for the instrument and
// blocks until the gateway answers or the request times out. Records are
// normalized, filtered to the requested sizes, and seeded into the store
// before they are returned.
func (c *Client) RequestHistoricalCandles(ctx context.Context, activeID int, sizes ...int) ([]model.Candle, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if len(sizes) == 0 {
		sizes = []int{candle.DefaultBucketSize}
	}

	// A caller without its own deadline must still unblock when the
	// entry is abandoned by a disconnect.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Requests.Timeout+time.Second)
		defer cancel()
	}

	type outcome struct {
		records []model.Candle
		err     error
	}
	ch := make(chan outcome, 1)

	id := c.newID()
	c.pending.Add(id,
		func(frame protocol.Frame) {
			batch, err := protocol.ParseCandleBatch(frame.Msg)
			if err != nil {
				// An unreadable batch resolves empty rather than failing
				// the caller.
				c.logger.Warn("historical batch unparsable", "error", err)
			}
			records := candle.NormalizeSeed(batch, activeID, sizes)
			c.store.Seed(records)
			ch <- outcome{records: records}
		},
		func(err error) {
			ch <- outcome{err: err}
		},
	)

	payload, err := protocol.NewGetFirstCandles(activeID, sizes, c.cfg.Candles.SeedCount, id).Encode()
	if err == nil {
		err = c.supervisor.Send(payload)
	}
	if err != nil {
		c.pending.Fail(id, err)
		return nil, fmt.Errorf("request candles %d: %w", activeID, err)
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("request candles %d: %w", activeID, out.err)
		}
		return out.records, nil
	case <-ctx.Done():
		c.pending.Fail(id, ctx.Err())
		return nil, ctx.Err()
	}
}

// CurrentCandle returns the live candle for the instrument at size.
func (c *Client) CurrentCandle(activeID, size int) (model.Candle, bool) {
	return c.store.Current(model.CandleKey{ActiveID: activeID, Size: size})
}

// History returns the closed candles held for the instrument at size,
// oldest first.
func (c *Client) History(activeID, size int) []model.Candle {
	return c.store.History(model.CandleKey{ActiveID: activeID, Size: size})
}

// SetCandleObserver registers a hook receiving every candle closed by a
// live roll, for downstream persistence. Pass nil to detach.
func (c *Client) SetCandleObserver(fn func(model.Candle)) {
	c.store.SetObserver(fn)
}
