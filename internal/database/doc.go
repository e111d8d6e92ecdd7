// Package database manages the PostgreSQL connection pool behind the
// candle archive. One pool per client instance; the archive writer is
// its only consumer.
package database
