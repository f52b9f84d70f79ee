// Package persistence batches minute aggregates and writes them to a
// time-series store with at most one logical row per (symbol, minute).
package persistence

import (
	"context"
	"time"
)

// Row is one minute-aligned aggregate bound for the ohlcv_1min table.
type Row struct {
	Symbol    string    `db:"symbol"`
	Timestamp time.Time `db:"timestamp"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    int64     `db:"volume"`
}

// Repository is the storage contract the writer flushes through.
type Repository interface {
	// UpsertBatch writes rows in one transaction. On conflict the store
	// keeps max(high), min(low), summed volume, and the incoming close.
	UpsertBatch(ctx context.Context, rows []Row) error
	Ping(ctx context.Context) error
	Close() error
}
