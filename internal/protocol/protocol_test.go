package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

// TestCommandWireShapes pins the exact JSON each command produces. The
// gateway rejects commands whose shape drifts, so these are golden.
func TestCommandWireShapes(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "authenticate",
			env:  NewAuthenticate("sess-abc", "req-1"),
			want: `{"name":"authenticate","msg":{"ssid":"sess-abc"},"request_id":"req-1"}`,
		},
		{
			name: "subscribe",
			env:  NewSubscribeCandles(76, 60),
			want: `{"name":"subscribeMessage","msg":{"name":"candle-generated","params":{"routingFilters":{"active_id":76,"size":60}}}}`,
		},
		{
			name: "unsubscribe",
			env:  NewUnsubscribeCandles(76, 60),
			want: `{"name":"unsubscribeMessage","msg":{"name":"candle-generated","params":{"routingFilters":{"active_id":76,"size":60}}}}`,
		},
		{
			name: "get-first-candles",
			env:  NewGetFirstCandles(76, []int{60, 300}, 100, "req-2"),
			want: `{"name":"get-first-candles","msg":{"active_id":76,"size":[60,300],"count":100},"request_id":"req-2"}`,
		},
		{
			name: "get-balances",
			env:  NewGetBalances("req-3"),
			want: `{"name":"get-balances","msg":{},"request_id":"req-3"}`,
		},
		{
			name: "change-balance",
			env:  NewChangeBalance(1042, "req-4"),
			want: `{"name":"api_profile_changebalance","msg":{"balance_id":1042},"request_id":"req-4"}`,
		},
		{
			name: "heartbeat",
			env:  NewHeartbeat(time.UnixMilli(1700000000000)),
			want: `{"name":"heartbeat","msg":"1700000000000"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.env.Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Encode() = %s\nwant       %s", data, tt.want)
			}
		})
	}
}

func TestParseFrame(t *testing.T) {
	t.Run("tick with optional fields present", func(t *testing.T) {
		raw := `{"name":"candle-generated","msg":{"active_id":76,"size":60,"from":1000,"to":1060,"open":1.1000,"close":1.1005,"max":1.1010,"min":1.0990,"volume":42,"phase":"trading","at":1700000000000000000}}`

		f, err := ParseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("ParseFrame() error: %v", err)
		}
		if f.Name != KindCandleTick {
			t.Fatalf("Name = %q, want %q", f.Name, KindCandleTick)
		}

		var tick WireCandle
		if err := json.Unmarshal(f.Msg, &tick); err != nil {
			t.Fatalf("unmarshal tick: %v", err)
		}
		if tick.Max == nil || *tick.Max != 1.1010 {
			t.Errorf("Max = %v, want 1.1010", tick.Max)
		}
		if tick.Min == nil || *tick.Min != 1.0990 {
			t.Errorf("Min = %v, want 1.0990", tick.Min)
		}
		if tick.Volume == nil || *tick.Volume != 42 {
			t.Errorf("Volume = %v, want 42", tick.Volume)
		}
	})

	t.Run("tick with optional fields absent", func(t *testing.T) {
		raw := `{"name":"candle-generated","msg":{"active_id":76,"size":60,"from":1000,"close":1.2000}}`

		f, err := ParseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("ParseFrame() error: %v", err)
		}

		var tick WireCandle
		if err := json.Unmarshal(f.Msg, &tick); err != nil {
			t.Fatalf("unmarshal tick: %v", err)
		}
		if tick.Max != nil || tick.Min != nil || tick.Open != nil || tick.Volume != nil {
			t.Errorf("expected nil optionals, got max=%v min=%v open=%v volume=%v",
				tick.Max, tick.Min, tick.Open, tick.Volume)
		}
		if tick.Close != 1.2000 {
			t.Errorf("Close = %v, want 1.2000", tick.Close)
		}
	})

	t.Run("authenticated boolean body", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"name":"authenticated","msg":true,"request_id":"req-9"}`))
		if err != nil {
			t.Fatalf("ParseFrame() error: %v", err)
		}
		if f.RequestID != "req-9" {
			t.Errorf("RequestID = %q, want req-9", f.RequestID)
		}

		var ok bool
		if err := json.Unmarshal(f.Msg, &ok); err != nil {
			t.Fatalf("unmarshal bool body: %v", err)
		}
		if !ok {
			t.Error("authenticated body = false, want true")
		}
	})

	t.Run("balance-changed", func(t *testing.T) {
		raw := `{"name":"balance-changed","msg":{"current_balance":{"id":1042,"amount":10250.75}}}`

		f, err := ParseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("ParseFrame() error: %v", err)
		}

		var bc BalanceChangedMsg
		if err := json.Unmarshal(f.Msg, &bc); err != nil {
			t.Fatalf("unmarshal balance-changed: %v", err)
		}
		if bc.CurrentBalance.ID != 1042 {
			t.Errorf("ID = %d, want 1042", bc.CurrentBalance.ID)
		}
		if bc.CurrentBalance.Amount.StringFixed(2) != "10250.75" {
			t.Errorf("Amount = %s, want 10250.75", bc.CurrentBalance.Amount)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := ParseFrame([]byte(`{not json`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})
}
