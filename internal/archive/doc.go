// Package archive implements the optional closed-candle persistence path.
//
// The candle store's observer hook feeds rolled candles into a growable
// buffer; a batch writer drains it and appends to the candles table with
// ON CONFLICT DO NOTHING. Append-only semantics: rows are never updated,
// so a candle replayed after a reconnect is skipped, not rewritten.
package archive
