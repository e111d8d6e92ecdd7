// Package model defines shared data types used across the exstream client.
//
// Conventions:
//   - Prices: float64 as delivered by the gateway (typically 4-6 decimal places)
//   - Monetary amounts: decimal.Decimal for exact balance arithmetic
//   - Candle bucket bounds: int64 seconds since Unix epoch
//   - Tick timestamps: int64 nanoseconds since Unix epoch, as delivered
//   - Instrument IDs: int (the gateway's numeric active_id)
package model
