// Package postgres implements the persistence repository over PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// Repo writes minute aggregates into ohlcv_1min.
type Repo struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// Open connects and configures the pool.
func Open(ctx context.Context, dsn string, maxOpen, minIdle int, connectTimeout time.Duration) (*Repo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(minIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewRepo(db), nil
}

// NewRepo wraps an existing handle, used by tests.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db, log: log.With().Str("component", "ohlcv_repo").Logger()}
}

// EnsureSchema creates the ohlcv_1min table and its index if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	r.log.Debug().Msg("schema ensured")
	return nil
}

// UpsertBatch writes all rows in one statement inside a transaction. The
// conflict action keeps monotone aggregates: max(high), min(low), summed
// volume, last writer's close; open is never overwritten.
func (r *Repo) UpsertBatch(ctx context.Context, rows []persistence.Row) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*7)
	for i, row := range rows {
		base := i * 7
		placeholders[i] = fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, row.Symbol, row.Timestamp, row.Open, row.High, row.Low, row.Close, row.Volume)
	}

	query := `INSERT INTO ohlcv_1min (symbol, timestamp, open, high, low, close, volume) VALUES ` +
		strings.Join(placeholders, ",") + `
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			high   = GREATEST(ohlcv_1min.high, EXCLUDED.high),
			low    = LEAST(ohlcv_1min.low, EXCLUDED.low),
			close  = EXCLUDED.close,
			volume = ohlcv_1min.volume + EXCLUDED.volume`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return fmt.Errorf("upsert %d rows: %w", len(rows), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the pool.
func (r *Repo) Close() error {
	return r.db.Close()
}
