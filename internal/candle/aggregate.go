package candle

import (
	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
)

const (
	// DefaultBucketSize is assumed when a historical record omits its
	// bucket size. The gateway's base stream is one-minute candles.
	DefaultBucketSize = 60

	// DefaultHistoryLimit bounds the closed candles kept per stream.
	DefaultHistoryLimit = 500
)

// RollOrInit applies one live tick to a stream. When the tick opens a
// strictly newer bucket, the previous candle is stamped closed and
// returned alongside the fresh live candle. Any other tick, including
// one older than the current bucket, merges into the current candle, so
// the live from never moves backwards.
func RollOrInit(prev *model.Candle, tick protocol.WireCandle) (model.Candle, *model.Candle) {
	if prev == nil || tick.From > prev.From {
		current := fromWire(tick)
		if current.Phase == "" {
			current.Phase = model.PhaseTrading
		}
		if current.To == 0 && current.Size > 0 {
			current.To = current.From + int64(current.Size)
		}
		if prev == nil {
			return current, nil
		}
		closed := *prev
		closed.Phase = model.PhaseClosed
		return current, &closed
	}
	return mergeTick(*prev, tick), nil
}

// mergeTick folds a same-bucket tick into the live candle. High and low
// only widen; close always takes the tick's value.
func mergeTick(cur model.Candle, tick protocol.WireCandle) model.Candle {
	cur.Close = tick.Close
	if cur.Close > cur.High {
		cur.High = cur.Close
	}
	if tick.Max != nil && *tick.Max > cur.High {
		cur.High = *tick.Max
	}
	if cur.Close < cur.Low {
		cur.Low = cur.Close
	}
	if tick.Min != nil && *tick.Min < cur.Low {
		cur.Low = *tick.Min
	}
	if tick.Volume != nil {
		cur.Volume = *tick.Volume
	}
	if tick.Phase != "" {
		cur.Phase = tick.Phase
	}
	if tick.At != 0 {
		cur.At = tick.At
	}
	if tick.ID != 0 {
		cur.ID = tick.ID
	}
	return cur
}

// NormalizeSeed maps a raw historical batch to canonical closed records:
// max and min become high and low, a missing size defaults to
// DefaultBucketSize, a missing to defaults to from+size, and a missing
// instrument id falls back to activeID. Records that still lack a usable
// key are dropped. When sizes is non-empty only those bucket sizes are
// kept. Input order is preserved and a malformed or empty batch yields
// an empty slice, never an error.
func NormalizeSeed(batch []protocol.WireCandle, activeID int, sizes []int) []model.Candle {
	records := make([]model.Candle, 0, len(batch))
	for _, w := range batch {
		if w.From <= 0 {
			continue
		}
		c := fromWire(w)
		if c.ActiveID == 0 {
			c.ActiveID = activeID
		}
		if c.ActiveID <= 0 {
			continue
		}
		if c.Size <= 0 {
			c.Size = DefaultBucketSize
		}
		if len(sizes) > 0 && !containsSize(sizes, c.Size) {
			continue
		}
		if c.To == 0 {
			c.To = c.From + int64(c.Size)
		}
		c.Phase = model.PhaseClosed
		records = append(records, c)
	}
	return records
}

// fromWire maps one wire candle onto the canonical shape. Absent OHLC
// fields collapse onto close, which keeps high >= close >= low even for
// degenerate single-price ticks.
func fromWire(w protocol.WireCandle) model.Candle {
	c := model.Candle{
		ID:       w.ID,
		ActiveID: w.ActiveID,
		Size:     w.Size,
		From:     w.From,
		To:       w.To,
		Close:    w.Close,
		Phase:    w.Phase,
		At:       w.At,
	}
	if w.Open != nil {
		c.Open = *w.Open
	} else {
		c.Open = w.Close
	}
	c.High = w.Close
	if w.Max != nil && *w.Max > c.High {
		c.High = *w.Max
	}
	c.Low = w.Close
	if w.Min != nil && *w.Min < c.Low {
		c.Low = *w.Min
	}
	if w.Volume != nil {
		c.Volume = *w.Volume
	}
	return c
}

func containsSize(sizes []int, size int) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}
