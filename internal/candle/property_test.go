package candle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
)

// tickCase is a generated live tick: a bucket index into a one-minute
// grid plus a close price and optional max/min bounds.
type tickCase struct {
	bucket int64
	close  float64
	max    float64
	min    float64
	hasMax bool
	hasMin bool
}

func (ts tickCase) wire() protocol.WireCandle {
	w := protocol.WireCandle{
		ActiveID: 1,
		Size:     60,
		From:     1000 + ts.bucket*60,
		Close:    ts.close,
	}
	if ts.hasMax {
		w.Max = fptr(ts.max)
	}
	if ts.hasMin {
		w.Min = fptr(ts.min)
	}
	return w
}

func genTickCase() gopter.Gen {
	return gopter.CombineGens(
		gen.Int64Range(0, 40),         // bucket index, deliberately non-monotonic
		gen.Float64Range(1.0, 2.0),    // close price
		gen.Float64Range(0.0, 0.05),   // max offset above close
		gen.Float64Range(0.0, 0.05),   // min offset below close
		gen.Bool(),                    // tick carries max
		gen.Bool(),                    // tick carries min
	).Map(func(values []interface{}) tickCase {
		closePrice := values[1].(float64)
		return tickCase{
			bucket: values[0].(int64),
			close:  closePrice,
			max:    closePrice + values[2].(float64),
			min:    closePrice - values[3].(float64),
			hasMax: values[4].(bool),
			hasMin: values[5].(bool),
		}
	})
}

// For any tick sequence, including out-of-order buckets, the store must
// keep history within its bound, ordered by from, and price-consistent.
func TestProperty_HistoryBoundedAndOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("history respects bound, order, and price envelope", prop.ForAll(
		func(limit int, ticks []tickCase) bool {
			st := NewStore(limit, nil)
			key := model.CandleKey{ActiveID: 1, Size: 60}

			for _, ts := range ticks {
				if err := st.HandleTick(ts.wire(), time.Now()); err != nil {
					return false
				}
			}

			hist := st.History(key)
			if len(hist) > limit {
				return false
			}

			for i, c := range hist {
				if c.Phase != model.PhaseClosed {
					return false
				}
				if c.High < c.Close || c.Low > c.Close || c.High < c.Low {
					return false
				}
				if i > 0 && c.From <= hist[i-1].From {
					return false
				}
			}

			// The live candle always sits past the newest closed bucket.
			if cur, ok := st.Current(key); ok && len(hist) > 0 {
				if cur.From <= hist[len(hist)-1].From {
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 25),
		gen.SliceOf(genTickCase()),
	))

	properties.TestingRun(t)
}

// Merging any tick into a live candle must never shrink the high/low
// envelope or move the bucket start.
func TestProperty_MergeNeverShrinksEnvelope(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("live candle envelope only widens within a bucket", prop.ForAll(
		func(first tickCase, rest []tickCase) bool {
			current, _ := RollOrInit(nil, first.wire())

			for _, ts := range rest {
				// Pin every tick to the first tick's bucket.
				ts.bucket = first.bucket
				prev := current
				var closed *model.Candle
				current, closed = RollOrInit(&prev, ts.wire())
				if closed != nil {
					return false
				}
				if current.From != prev.From {
					return false
				}
				if current.High < prev.High || current.Low > prev.Low {
					return false
				}
				if current.High < current.Close || current.Low > current.Close {
					return false
				}
			}
			return true
		},
		genTickCase(),
		gen.SliceOf(genTickCase()),
	))

	properties.TestingRun(t)
}
