package candle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
)

// ErrIncompleteTick is returned when a live tick arrives without the
// instrument id or bucket size needed to key its stream.
var ErrIncompleteTick = errors.New("live tick missing instrument or size")

// series is the per-stream state: a bounded history of closed candles,
// oldest first, plus at most one live candle.
type series struct {
	history []model.Candle
	current *model.Candle
}

// Stats is a snapshot of aggregation counters.
type Stats struct {
	Streams    int
	Ticks      int64
	Closed     int64
	Seeded     int64
	Rejected   int64
	LastTickAt time.Time
}

// Store keeps candle state for every subscribed stream. It implements
// the router's candle handler and is safe for concurrent use.
type Store struct {
	limit  int
	logger *slog.Logger

	mu       sync.RWMutex
	series   map[model.CandleKey]*series
	observer func(model.Candle)

	ticks    int64
	closed   int64
	seeded   int64
	rejected int64
	lastTick time.Time
}

// NewStore creates a store bounding each stream's history to
// historyLimit closed candles. A non-positive limit falls back to
// DefaultHistoryLimit.
func NewStore(historyLimit int, logger *slog.Logger) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		limit:  historyLimit,
		logger: logger.With("component", "candles"),
		series: make(map[model.CandleKey]*series),
	}
}

// SetObserver registers a hook invoked with every candle closed by a
// live roll. Seeded history does not pass through the hook. The hook
// runs outside the store lock.
func (s *Store) SetObserver(fn func(model.Candle)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// HandleTick applies one live tick to its stream. A tick without an
// instrument id or bucket size is rejected without mutating any state.
func (s *Store) HandleTick(tick protocol.WireCandle, receivedAt time.Time) error {
	if tick.ActiveID <= 0 || tick.Size <= 0 {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		return fmt.Errorf("%w: active_id=%d size=%d", ErrIncompleteTick, tick.ActiveID, tick.Size)
	}

	key := model.CandleKey{ActiveID: tick.ActiveID, Size: tick.Size}

	s.mu.Lock()
	ser := s.ensureLocked(key)
	current, rolled := RollOrInit(ser.current, tick)
	ser.current = &current
	if rolled != nil {
		s.appendLocked(ser, *rolled)
		s.closed++
	}
	s.ticks++
	s.lastTick = receivedAt
	observer := s.observer
	s.mu.Unlock()

	if rolled != nil {
		s.logger.Debug("candle closed",
			"active_id", key.ActiveID,
			"size", key.Size,
			"from", rolled.From,
			"close", rolled.Close,
		)
		if observer != nil {
			observer(*rolled)
		}
	}
	return nil
}

// HandleSeedBatch normalizes an uncorrelated history broadcast and
// appends it. Batches arriving this way carry their own instrument ids.
func (s *Store) HandleSeedBatch(batch []protocol.WireCandle) {
	s.Seed(NormalizeSeed(batch, 0, nil))
}

// Seed appends normalized records to their streams' histories, in input
// order. Seeding appends only; it never replaces candles already held.
func (s *Store) Seed(records []model.Candle) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range records {
		s.appendLocked(s.ensureLocked(c.Key()), c)
	}
	s.seeded += int64(len(records))
	s.mu.Unlock()

	s.logger.Debug("history seeded", "records", len(records))
}

// Current returns the live candle for a stream, if one exists.
func (s *Store) Current(key model.CandleKey) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.series[key]
	if !ok || ser.current == nil {
		return model.Candle{}, false
	}
	return *ser.current, true
}

// History returns a copy of a stream's closed candles, oldest first.
func (s *Store) History(key model.CandleKey) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.series[key]
	if !ok || len(ser.history) == 0 {
		return nil
	}
	out := make([]model.Candle, len(ser.history))
	copy(out, ser.history)
	return out
}

// Clear drops all per-stream state. Counters keep their totals.
func (s *Store) Clear() {
	s.mu.Lock()
	s.series = make(map[model.CandleKey]*series)
	s.mu.Unlock()
}

// Stats returns a snapshot of aggregation counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Streams:    len(s.series),
		Ticks:      s.ticks,
		Closed:     s.closed,
		Seeded:     s.seeded,
		Rejected:   s.rejected,
		LastTickAt: s.lastTick,
	}
}

func (s *Store) ensureLocked(key model.CandleKey) *series {
	ser, ok := s.series[key]
	if !ok {
		ser = &series{}
		s.series[key] = ser
	}
	return ser
}

// appendLocked adds one closed candle, evicting oldest entries past the
// history limit. The retained tail is copied down so the backing array
// stays bounded.
func (s *Store) appendLocked(ser *series, c model.Candle) {
	ser.history = append(ser.history, c)
	if over := len(ser.history) - s.limit; over > 0 {
		ser.history = ser.history[:copy(ser.history, ser.history[over:])]
	}
}
