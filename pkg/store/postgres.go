package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

const table = "market_updates"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_updates (
		time       TIMESTAMPTZ      NOT NULL,
		ticker     TEXT             NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		volume     BIGINT           NOT NULL,
		latency_ms DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticker_time ON market_updates (ticker, time DESC)`,
}

// hypertable only succeeds when the timescaledb extension is installed.
const hypertable = `SELECT create_hypertable('market_updates', 'time', if_not_exists => TRUE)`

// Postgres persists market updates into an append-only time-series table.
type Postgres struct {
	db *sql.DB
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// One writer goroutine plus the occasional health or read query.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// EnsureSchema creates the table and its index when they are missing. It
// reports whether the table could be turned into a TimescaleDB hypertable;
// on plain Postgres that step fails and the table stays a regular one.
func (p *Postgres) EnsureSchema(ctx context.Context) (bool, error) {
	if _, err := p.db.ExecContext(ctx, schema[0]); err != nil {
		return false, fmt.Errorf("create table: %w", err)
	}

	isHypertable := true
	if _, err := p.db.ExecContext(ctx, hypertable); err != nil {
		isHypertable = false
	}

	for _, stmt := range schema[1:] {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return isHypertable, fmt.Errorf("create index: %w", err)
		}
	}
	return isHypertable, nil
}

// InsertBatch writes the whole batch in one transaction using COPY. Either
// every row is stored or none is.
func (p *Postgres) InsertBatch(ctx context.Context, batch []models.UpdateRecord) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "time", "ticker", "price", "volume", "latency_ms"))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, rec := range batch {
		r := rec.Row()
		if _, err := stmt.ExecContext(ctx, r.Time, r.Ticker, r.Price, r.Volume, r.LatencyMs); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("copy row: %w", err)
		}
	}

	// An Exec without arguments flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return fmt.Errorf("copy flush: %w", err)
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("copy close: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns the newest n rows for ticker, newest first.
func (p *Postgres) Recent(ctx context.Context, ticker string, n int) ([]models.Row, error) {
	const q = `
		SELECT time, ticker, price, volume, latency_ms
		FROM market_updates
		WHERE ticker = $1
		ORDER BY time DESC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, q, ticker, n)
	if err != nil {
		return nil, fmt.Errorf("query recent %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var r models.Row
		if err := rows.Scan(&r.Time, &r.Ticker, &r.Price, &r.Volume, &r.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan recent %s: %w", ticker, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Health pings the database.
func (p *Postgres) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}
