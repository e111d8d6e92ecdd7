package router

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tradewire/exstream/internal/protocol"
)

type authCall struct {
	requestID string
	success   bool
}

type fakeAuth struct {
	mu      sync.Mutex
	calls   []authCall
	consume bool
}

func (f *fakeAuth) HandleResponse(requestID string, success bool) bool {
	f.mu.Lock()
	f.calls = append(f.calls, authCall{requestID, success})
	f.mu.Unlock()
	return f.consume
}

type fakeCandles struct {
	mu      sync.Mutex
	ticks   []protocol.WireCandle
	batches [][]protocol.WireCandle
	tickErr error
}

func (f *fakeCandles) HandleTick(tick protocol.WireCandle, receivedAt time.Time) error {
	if f.tickErr != nil {
		return f.tickErr
	}
	f.mu.Lock()
	f.ticks = append(f.ticks, tick)
	f.mu.Unlock()
	return nil
}

func (f *fakeCandles) HandleSeedBatch(candles []protocol.WireCandle) {
	f.mu.Lock()
	f.batches = append(f.batches, candles)
	f.mu.Unlock()
}

type fakeBalances struct {
	mu       sync.Mutex
	profiles []protocol.ProfileMsg
	sets     [][]protocol.WireBalance
	changes  []protocol.BalanceChangedMsg
}

func (f *fakeBalances) HandleProfile(msg protocol.ProfileMsg) {
	f.mu.Lock()
	f.profiles = append(f.profiles, msg)
	f.mu.Unlock()
}

func (f *fakeBalances) HandleBalances(balances []protocol.WireBalance) {
	f.mu.Lock()
	f.sets = append(f.sets, balances)
	f.mu.Unlock()
}

func (f *fakeBalances) HandleBalanceChanged(msg protocol.BalanceChangedMsg) {
	f.mu.Lock()
	f.changes = append(f.changes, msg)
	f.mu.Unlock()
}

func testRouter(handlers Handlers) (*Router, *PendingTable) {
	pending := NewPendingTable(time.Second, nil)
	return New(pending, handlers, nil), pending
}

func TestRoute_CorrelationPreemptsKindDispatch(t *testing.T) {
	candles := &fakeCandles{}
	r, pending := testRouter(Handlers{Candles: candles})

	resolved := make(chan protocol.Frame, 1)
	pending.Add("req-7", func(f protocol.Frame) { resolved <- f }, nil)

	// A tick frame carrying a pending correlation id resolves the request
	// and must NOT reach the tick handler.
	raw := `{"name":"candle-generated","msg":{"active_id":76,"size":60,"from":1000,"close":1.2},"request_id":"req-7"}`
	r.Route([]byte(raw), time.Now())

	select {
	case f := <-resolved:
		if f.Name != protocol.KindCandleTick {
			t.Errorf("resolved frame kind = %q, want candle-generated", f.Name)
		}
	default:
		t.Fatal("pending request was not resolved")
	}

	candles.mu.Lock()
	defer candles.mu.Unlock()
	if len(candles.ticks) != 0 {
		t.Errorf("tick handler received %d ticks, want 0 (correlation pre-empts)", len(candles.ticks))
	}
}

func TestRoute_TickDispatch(t *testing.T) {
	candles := &fakeCandles{}
	r, _ := testRouter(Handlers{Candles: candles})

	raw := `{"name":"candle-generated","msg":{"active_id":76,"size":60,"from":1000,"close":1.2005,"max":1.2010}}`
	r.Route([]byte(raw), time.Now())

	candles.mu.Lock()
	defer candles.mu.Unlock()
	if len(candles.ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(candles.ticks))
	}
	tick := candles.ticks[0]
	if tick.ActiveID != 76 || tick.Size != 60 || tick.Close != 1.2005 {
		t.Errorf("tick = %+v", tick)
	}
	if tick.Max == nil || *tick.Max != 1.2010 {
		t.Errorf("tick.Max = %v, want 1.2010", tick.Max)
	}

	if got := r.Stats().Routed; got != 1 {
		t.Errorf("Stats().Routed = %d, want 1", got)
	}
}

func TestRoute_RejectedTickDoesNotStopRouting(t *testing.T) {
	candles := &fakeCandles{tickErr: errors.New("missing instrument")}
	r, _ := testRouter(Handlers{Candles: candles})

	bad := `{"name":"candle-generated","msg":{"close":1.1}}`
	r.Route([]byte(bad), time.Now())

	if got := r.Stats().Routed; got != 0 {
		t.Errorf("Routed = %d after rejected tick, want 0", got)
	}

	// The handler recovers; the next frame routes normally.
	candles.tickErr = nil
	good := `{"name":"candle-generated","msg":{"active_id":76,"size":60,"from":1000,"close":1.2}}`
	r.Route([]byte(good), time.Now())

	if got := r.Stats().Routed; got != 1 {
		t.Errorf("Routed = %d after recovery, want 1", got)
	}
}

func TestRoute_AuthenticatedFrame(t *testing.T) {
	auth := &fakeAuth{consume: true}
	r, _ := testRouter(Handlers{Auth: auth})

	r.Route([]byte(`{"name":"authenticated","msg":true,"request_id":"req-1"}`), time.Now())

	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.calls) != 1 {
		t.Fatalf("auth calls = %d, want 1", len(auth.calls))
	}
	if auth.calls[0] != (authCall{"req-1", true}) {
		t.Errorf("auth call = %+v, want {req-1 true}", auth.calls[0])
	}
}

func TestRoute_ResultFrameFallsThroughWhenNotAuth(t *testing.T) {
	auth := &fakeAuth{consume: false}
	r, _ := testRouter(Handlers{Auth: auth})

	// Unconsumed results are dropped quietly, not counted as routed.
	r.Route([]byte(`{"name":"result","msg":{"success":true},"request_id":"req-x"}`), time.Now())

	if got := r.Stats().Routed; got != 0 {
		t.Errorf("Routed = %d, want 0 for unmatched result", got)
	}

	auth.consume = true
	r.Route([]byte(`{"name":"result","msg":{"success":false},"request_id":"req-y"}`), time.Now())

	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.calls) != 2 {
		t.Fatalf("auth calls = %d, want 2", len(auth.calls))
	}
	if auth.calls[1] != (authCall{"req-y", false}) {
		t.Errorf("auth call = %+v, want {req-y false}", auth.calls[1])
	}
	if got := r.Stats().Routed; got != 1 {
		t.Errorf("Routed = %d, want 1 after consumed result", got)
	}
}

func TestRoute_TimeSync(t *testing.T) {
	var got int64
	r, _ := testRouter(Handlers{OnTimeSync: func(ms int64) { got = ms }})

	r.Route([]byte(`{"name":"timeSync","msg":1700000000123}`), time.Now())

	if got != 1700000000123 {
		t.Errorf("OnTimeSync received %d, want 1700000000123", got)
	}
}

func TestRoute_SeedBatchShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "object with candles field",
			raw:  `{"name":"first-candles","msg":{"candles":[{"from":1000,"close":1.1},{"from":1060,"close":1.2}]}}`,
		},
		{
			name: "bare array",
			raw:  `{"name":"candles","msg":[{"from":1000,"close":1.1},{"from":1060,"close":1.2}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := &fakeCandles{}
			r, _ := testRouter(Handlers{Candles: candles})

			r.Route([]byte(tt.raw), time.Now())

			candles.mu.Lock()
			defer candles.mu.Unlock()
			if len(candles.batches) != 1 {
				t.Fatalf("batches = %d, want 1", len(candles.batches))
			}
			if len(candles.batches[0]) != 2 {
				t.Errorf("batch size = %d, want 2", len(candles.batches[0]))
			}
		})
	}
}

func TestRoute_BalanceFrames(t *testing.T) {
	balances := &fakeBalances{}
	r, _ := testRouter(Handlers{Balances: balances})

	r.Route([]byte(`{"name":"profile","msg":{"balances":[{"id":1,"type":4,"currency":"USD","amount":10000}],"balance_id":1}}`), time.Now())
	r.Route([]byte(`{"name":"balances","msg":[{"id":1,"type":4,"currency":"USD","amount":9000}]}`), time.Now())
	r.Route([]byte(`{"name":"balance-changed","msg":{"current_balance":{"id":1,"amount":9500.25}}}`), time.Now())

	balances.mu.Lock()
	defer balances.mu.Unlock()
	if len(balances.profiles) != 1 {
		t.Errorf("profiles = %d, want 1", len(balances.profiles))
	}
	if len(balances.sets) != 1 {
		t.Errorf("balance sets = %d, want 1", len(balances.sets))
	}
	if len(balances.changes) != 1 {
		t.Errorf("changes = %d, want 1", len(balances.changes))
	}
	if balances.changes[0].CurrentBalance.ID != 1 {
		t.Errorf("change id = %d, want 1", balances.changes[0].CurrentBalance.ID)
	}
}

func TestRoute_BalanceFramesWithoutHandler(t *testing.T) {
	// Balance collaborator not configured: frames are skipped, not fatal.
	r, _ := testRouter(Handlers{})

	r.Route([]byte(`{"name":"profile","msg":{"balances":[]}}`), time.Now())
	r.Route([]byte(`{"name":"balance-changed","msg":{"current_balance":{"id":1,"amount":1}}}`), time.Now())

	stats := r.Stats()
	if stats.Unknown != 0 {
		t.Errorf("Unknown = %d, want 0 (configured kinds are never unknown)", stats.Unknown)
	}
}

func TestRoute_IgnoreList(t *testing.T) {
	r, _ := testRouter(Handlers{})

	r.Route([]byte(`{"name":"front","msg":"fin"}`), time.Now())
	r.Route([]byte(`{"name":"heartbeat","msg":"1700000000000"}`), time.Now())

	stats := r.Stats()
	if stats.Unknown != 0 {
		t.Errorf("Unknown = %d, want 0 for ignore-listed kinds", stats.Unknown)
	}
	if stats.Received != 2 {
		t.Errorf("Received = %d, want 2", stats.Received)
	}
}

func TestRoute_UnknownKindCountedNotFatal(t *testing.T) {
	candles := &fakeCandles{}
	r, _ := testRouter(Handlers{Candles: candles})

	r.Route([]byte(`{"name":"mystery-kind","msg":{}}`), time.Now())
	r.Route([]byte(`{"name":"candle-generated","msg":{"active_id":1,"size":60,"from":1,"close":1}}`), time.Now())

	stats := r.Stats()
	if stats.Unknown != 1 {
		t.Errorf("Unknown = %d, want 1", stats.Unknown)
	}
	if stats.Routed != 1 {
		t.Errorf("Routed = %d, want 1 (routing continues after unknown kind)", stats.Routed)
	}
}

func TestRoute_MalformedFrameCountedNotFatal(t *testing.T) {
	candles := &fakeCandles{}
	r, _ := testRouter(Handlers{Candles: candles})

	r.Route([]byte(`{broken`), time.Now())
	r.Route([]byte(`{"name":"candle-generated","msg":{"active_id":1,"size":60,"from":1,"close":1}}`), time.Now())

	stats := r.Stats()
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
	if stats.Routed != 1 {
		t.Errorf("Routed = %d, want 1 (one malformed frame never affects the next)", stats.Routed)
	}
}
