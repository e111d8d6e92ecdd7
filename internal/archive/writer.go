package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewire/exstream/internal/config"
	"github.com/tradewire/exstream/internal/model"
)

// Metrics counts writer activity since start.
type Metrics struct {
	Inserts   int64 // rows written
	Conflicts int64 // rows skipped by ON CONFLICT
	Flushes   int64 // batches attempted
	Errors    int64 // failed batch inserts
	Dropped   int64 // candles offered after shutdown
}

// Writer consumes rolled candles from its input buffer and appends them
// to the candles table in batches. Rows are never updated; replays after
// a reconnect land on the conflict target and are skipped.
type Writer struct {
	cfg    config.ArchiveConfig
	logger *slog.Logger

	input *Buffer[model.Candle]
	db    *pgxpool.Pool

	batch       []candleRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

type candleRow struct {
	ActiveID   int
	Size       int
	FromTs     int64
	ToTs       int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TickAt     int64 // last tick timestamp (ns), 0 when the gateway omitted it
	ArchivedAt int64 // local archive timestamp (µs)
}

// NewWriter creates a writer persisting through db.
func NewWriter(cfg config.ArchiveConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "archive"),
		input:  NewBuffer[model.Candle](cfg.BufferSize),
		db:     db,
		batch:  make([]candleRow, 0, cfg.BatchSize),
	}
}

// Offer enqueues one rolled candle. Intended as the candle store's
// observer hook; it never blocks on the database.
func (w *Writer) Offer(c model.Candle) {
	if w.input.Send(c) {
		return
	}
	w.batchMu.Lock()
	w.metrics.Dropped++
	w.batchMu.Unlock()
}

// Start begins consuming candles and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the buffer and flushes what remains. ctx bounds the
// shutdown; candles offered after Stop are dropped.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Whatever the consume loop did not get to.
	for _, c := range w.input.DrainTo(0) {
		w.batchMu.Lock()
		w.batch = append(w.batch, w.transform(c))
		w.batchMu.Unlock()
	}
	w.flush(ctx)

	w.logger.Info("archive writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves candles from the input buffer into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			c, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleCandle(c)
		}
	}
}

// flushLoop flushes the batch on every tick.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) handleCandle(c model.Candle) {
	row := w.transform(c)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

func (w *Writer) transform(c model.Candle) candleRow {
	return candleRow{
		ActiveID:   c.ActiveID,
		Size:       c.Size,
		FromTs:     c.From,
		ToTs:       c.To,
		Open:       c.Open,
		High:       c.High,
		Low:        c.Low,
		Close:      c.Close,
		Volume:     c.Volume,
		TickAt:     c.At,
		ArchivedAt: time.Now().UnixMicro(),
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]candleRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed candles",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []candleRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO candles (active_id, size, from_ts, to_ts, open, high, low, close, volume, tick_at, archived_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (active_id, size, from_ts) DO NOTHING
		`, r.ActiveID, r.Size, r.FromTs, r.ToTs, r.Open, r.High, r.Low, r.Close, r.Volume, r.TickAt, r.ArchivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
