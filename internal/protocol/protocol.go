package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Outbound command names.
const (
	CmdAuthenticate    = "authenticate"
	CmdSubscribe       = "subscribeMessage"
	CmdUnsubscribe     = "unsubscribeMessage"
	CmdGetFirstCandles = "get-first-candles"
	CmdGetBalances     = "get-balances"
	CmdChangeBalance   = "api_profile_changebalance"
	CmdHeartbeat       = "heartbeat"
)

// Inbound frame kinds.
const (
	KindAuthenticated  = "authenticated"
	KindResult         = "result"
	KindTimeSync       = "timeSync"
	KindFirstCandles   = "first-candles"
	KindCandles        = "candles"
	KindCandleTick     = "candle-generated"
	KindProfile        = "profile"
	KindBalances       = "balances"
	KindBalanceChanged = "balance-changed"
	KindFront          = "front"
	KindHeartbeat      = "heartbeat"
)

// Envelope is the outbound wire shape: every command the client sends.
type Envelope struct {
	Name      string      `json:"name"`
	Msg       interface{} `json:"msg"`
	RequestID string      `json:"request_id,omitempty"`
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Name, err)
	}
	return data, nil
}

// Frame is the inbound wire shape. Msg stays raw until the router picks
// a handler for the declared kind.
type Frame struct {
	Name      string          `json:"name"`
	Msg       json.RawMessage `json:"msg"`
	RequestID string          `json:"request_id"`
}

// ParseFrame decodes one inbound message into its envelope.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// Command constructors
// -----------------------------------------------------------------------------

type authBody struct {
	SSID string `json:"ssid"`
}

// NewAuthenticate builds the login command carrying the session secret.
func NewAuthenticate(ssid, requestID string) Envelope {
	return Envelope{Name: CmdAuthenticate, Msg: authBody{SSID: ssid}, RequestID: requestID}
}

// CandleFilters selects one candle stream inside a routing subscription.
type CandleFilters struct {
	ActiveID int `json:"active_id"`
	Size     int `json:"size"`
}

type routingParams struct {
	RoutingFilters CandleFilters `json:"routingFilters"`
}

type routingBody struct {
	Name   string        `json:"name"`
	Params routingParams `json:"params"`
}

// NewSubscribeCandles builds the subscription command for one (instrument, size) stream.
func NewSubscribeCandles(activeID, size int) Envelope {
	return Envelope{
		Name: CmdSubscribe,
		Msg: routingBody{
			Name:   KindCandleTick,
			Params: routingParams{RoutingFilters: CandleFilters{ActiveID: activeID, Size: size}},
		},
	}
}

// NewUnsubscribeCandles builds the unsubscription command for one stream.
func NewUnsubscribeCandles(activeID, size int) Envelope {
	return Envelope{
		Name: CmdUnsubscribe,
		Msg: routingBody{
			Name:   KindCandleTick,
			Params: routingParams{RoutingFilters: CandleFilters{ActiveID: activeID, Size: size}},
		},
	}
}

type firstCandlesBody struct {
	ActiveID int   `json:"active_id"`
	Sizes    []int `json:"size"`
	Count    int   `json:"count"`
}

// NewGetFirstCandles builds the historical-candle request for an instrument
// across one or more bucket sizes.
func NewGetFirstCandles(activeID int, sizes []int, count int, requestID string) Envelope {
	return Envelope{
		Name:      CmdGetFirstCandles,
		Msg:       firstCandlesBody{ActiveID: activeID, Sizes: sizes, Count: count},
		RequestID: requestID,
	}
}

// NewGetBalances builds the balance-snapshot request.
func NewGetBalances(requestID string) Envelope {
	return Envelope{Name: CmdGetBalances, Msg: struct{}{}, RequestID: requestID}
}

type changeBalanceBody struct {
	BalanceID int64 `json:"balance_id"`
}

// NewChangeBalance builds the active-balance switch command.
func NewChangeBalance(balanceID int64, requestID string) Envelope {
	return Envelope{Name: CmdChangeBalance, Msg: changeBalanceBody{BalanceID: balanceID}, RequestID: requestID}
}

// NewHeartbeat builds the keepalive command. The gateway expects the local
// wall clock in milliseconds as a string.
func NewHeartbeat(now time.Time) Envelope {
	return Envelope{Name: CmdHeartbeat, Msg: strconv.FormatInt(now.UnixMilli(), 10)}
}

// -----------------------------------------------------------------------------
// Inbound payloads
// -----------------------------------------------------------------------------

// ResultMsg is the generic acknowledgement body.
type ResultMsg struct {
	Success bool `json:"success"`
}

// WireCandle is the gateway's candle shape, shared by historical batches and
// live ticks. Optional fields are pointers so absence is distinguishable
// from zero.
type WireCandle struct {
	ID       int64    `json:"id"`
	ActiveID int      `json:"active_id"`
	Size     int      `json:"size"`
	From     int64    `json:"from"`
	To       int64    `json:"to"`
	Open     *float64 `json:"open"`
	Close    float64  `json:"close"`
	Max      *float64 `json:"max"`
	Min      *float64 `json:"min"`
	Volume   *float64 `json:"volume"`
	Phase    string   `json:"phase"`
	At       int64    `json:"at"`
}

// FirstCandlesMsg is the historical-batch body.
type FirstCandlesMsg struct {
	Candles []WireCandle `json:"candles"`
}

// ParseCandleBatch accepts both batch shapes the gateway emits: an object
// with a candles field, or a bare array.
func ParseCandleBatch(raw json.RawMessage) ([]WireCandle, error) {
	var msg FirstCandlesMsg
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg.Candles, nil
	}

	var bare []WireCandle
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// WireBalance is one account balance as delivered by the gateway.
type WireBalance struct {
	ID       int64           `json:"id"`
	Type     int             `json:"type"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// ProfileMsg is the post-auth account snapshot.
type ProfileMsg struct {
	Balances    []WireBalance `json:"balances"`
	BalanceID   *int64        `json:"balance_id"`
	BalanceType *int          `json:"balance_type"`
}

// BalanceChangedMsg confirms an active-balance switch.
type BalanceChangedMsg struct {
	CurrentBalance struct {
		ID     int64           `json:"id"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"current_balance"`
}
