package model

import "github.com/shopspring/decimal"

// -----------------------------------------------------------------------------
// Candle Types
// -----------------------------------------------------------------------------

// CandleKey identifies one candle stream: an instrument at a bucket size.
type CandleKey struct {
	ActiveID int // Instrument id (the gateway's numeric active_id)
	Size     int // Bucket duration in seconds (e.g., 60 = one-minute candles)
}

// Candle phases as reported by the gateway. A live candle moves through
// trading and closing; rollover stamps it closed when it enters history.
const (
	PhaseTrading = "trading"
	PhaseClosing = "closing"
	PhaseClosed  = "closed"
)

// Candle is one OHLC bucket. While live it sits in the current map and
// mutates as ticks arrive; once a strictly newer bucket begins it is closed
// and appended to history, after which it never changes.
type Candle struct {
	ID       int64 // Gateway candle id, 0 if not provided
	ActiveID int   // Instrument id
	Size     int   // Bucket duration in seconds

	From int64 // Bucket start (s since epoch)
	To   int64 // Bucket end (s since epoch), From+Size when the gateway omits it

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	Phase string // trading, closing, or closed
	At    int64  // Last tick timestamp (ns since epoch), 0 for seeded history
}

// Key returns the stream key this candle belongs to.
func (c Candle) Key() CandleKey {
	return CandleKey{ActiveID: c.ActiveID, Size: c.Size}
}

// -----------------------------------------------------------------------------
// Balance Types
// -----------------------------------------------------------------------------

// BalanceType is the gateway's numeric account-balance classification.
type BalanceType int

const (
	BalanceReal       BalanceType = 1
	BalanceTournament BalanceType = 2
	BalancePractice   BalanceType = 4
)

// String returns the canonical name used in logs and status output.
func (t BalanceType) String() string {
	switch t {
	case BalanceReal:
		return "REAL"
	case BalanceTournament:
		return "TOURNAMENT"
	case BalancePractice:
		return "PRACTICE"
	default:
		return "UNKNOWN"
	}
}

// Balance modes accepted by SwitchByMode. The gateway convention is
// mode 1 = real money, mode 2 = practice funds.
const (
	ModeReal     = 1
	ModePractice = 2
)

// BalanceTypeForMode maps a caller-facing mode to the balance type it
// selects. The second return is false for unrecognized modes.
func BalanceTypeForMode(mode int) (BalanceType, bool) {
	switch mode {
	case ModeReal:
		return BalanceReal, true
	case ModePractice:
		return BalancePractice, true
	default:
		return 0, false
	}
}

// Balance is one account balance as reported by the gateway.
type Balance struct {
	ID       int64           // Gateway balance id
	Type     BalanceType     // REAL, TOURNAMENT, or PRACTICE
	Currency string          // ISO currency code (e.g., "USD")
	Amount   decimal.Decimal // Current amount, exact
}
