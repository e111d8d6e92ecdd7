package archive

import (
	"context"
	"testing"
	"time"

	"github.com/tradewire/exstream/internal/config"
	"github.com/tradewire/exstream/internal/model"
)

func testArchiveConfig() config.ArchiveConfig {
	return config.ArchiveConfig{
		BatchSize:     100, // large enough that nothing auto-flushes
		FlushInterval: time.Hour,
		BufferSize:    16,
	}
}

func TestWriter_Transform(t *testing.T) {
	w := NewWriter(testArchiveConfig(), nil, nil)

	c := model.Candle{
		ID:       9,
		ActiveID: 5,
		Size:     60,
		From:     1000,
		To:       1060,
		Open:     1.2000,
		High:     1.2500,
		Low:      1.1900,
		Close:    1.2200,
		Volume:   31,
		Phase:    model.PhaseClosed,
		At:       1700000000000000000,
	}

	before := time.Now().UnixMicro()
	row := w.transform(c)
	after := time.Now().UnixMicro()

	if row.ActiveID != 5 {
		t.Errorf("ActiveID = %d, want 5", row.ActiveID)
	}
	if row.Size != 60 {
		t.Errorf("Size = %d, want 60", row.Size)
	}
	if row.FromTs != 1000 {
		t.Errorf("FromTs = %d, want 1000", row.FromTs)
	}
	if row.ToTs != 1060 {
		t.Errorf("ToTs = %d, want 1060", row.ToTs)
	}
	if row.Open != 1.2000 {
		t.Errorf("Open = %v, want 1.2", row.Open)
	}
	if row.High != 1.2500 {
		t.Errorf("High = %v, want 1.25", row.High)
	}
	if row.Low != 1.1900 {
		t.Errorf("Low = %v, want 1.19", row.Low)
	}
	if row.Close != 1.2200 {
		t.Errorf("Close = %v, want 1.22", row.Close)
	}
	if row.Volume != 31 {
		t.Errorf("Volume = %v, want 31", row.Volume)
	}
	if row.TickAt != 1700000000000000000 {
		t.Errorf("TickAt = %d, want 1700000000000000000", row.TickAt)
	}
	if row.ArchivedAt < before || row.ArchivedAt > after {
		t.Errorf("ArchivedAt = %d, want within [%d, %d]", row.ArchivedAt, before, after)
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	cfg := testArchiveConfig()
	cfg.FlushInterval = 100 * time.Millisecond

	// No database: the lifecycle must still start and stop cleanly as
	// long as nothing reaches a flush with data.
	w := NewWriter(cfg, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_HandleCandle_AddsToBatch(t *testing.T) {
	w := NewWriter(testArchiveConfig(), nil, nil)

	w.handleCandle(model.Candle{ActiveID: 5, Size: 60, From: 1000, Close: 1.2})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestWriter_OfferBuffers(t *testing.T) {
	w := NewWriter(testArchiveConfig(), nil, nil)

	w.Offer(model.Candle{ActiveID: 5, Size: 60, From: 1000})
	w.Offer(model.Candle{ActiveID: 5, Size: 60, From: 1060})

	if got := w.input.Len(); got != 2 {
		t.Errorf("input.Len() = %d, want 2", got)
	}
	if got := w.Stats().Dropped; got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestWriter_OfferAfterStopIsDropped(t *testing.T) {
	w := NewWriter(testArchiveConfig(), nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	w.Offer(model.Candle{ActiveID: 5, Size: 60, From: 1000})

	if got := w.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestWriter_Stats(t *testing.T) {
	w := NewWriter(testArchiveConfig(), nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}
