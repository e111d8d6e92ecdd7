// Package candle rebuilds OHLC candles from the gateway's irregular tick
// stream and from seeded history batches.
//
// The gateway does not emit one message per finished candle. It emits
// partial updates for the live bucket, sometimes several per second and
// sometimes seconds apart, each carrying a from timestamp and a close
// price with the other OHLC fields optional. Rollover is therefore
// inferred client side: a tick whose from is strictly newer than the
// current bucket closes that bucket into history and starts a new live
// candle. Ticks at or before the current from merge into the live candle,
// so a stream's history always moves forward in time.
//
// Each subscribed stream (instrument id + bucket size) holds at most one
// live candle and a bounded FIFO history of closed candles.
package candle
