package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketreplay/go-tick-fetch/models"
)

const tickTableDDL = `
CREATE TABLE IF NOT EXISTS ticks (
	stock_code TEXT NOT NULL,
	trade_date INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	tick_time TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	volume INTEGER NOT NULL,
	direction SMALLINT NOT NULL,
	PRIMARY KEY (stock_code, trade_date, seq)
)`

const tickInsertSQL = `
INSERT INTO ticks (stock_code, trade_date, seq, tick_time, price, volume, direction)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT DO NOTHING`

// PGSink mirrors tick batches into Postgres. Duplicate batches from a
// resumed run are absorbed by ON CONFLICT DO NOTHING.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink connects to dsn and ensures the tick table exists.
func NewPGSink(ctx context.Context, dsn string) (*PGSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, tickTableDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure tick table: %w", err)
	}
	return &PGSink{pool: pool}, nil
}

// InsertTicks writes one security's transactions for a trade date.
func (p *PGSink) InsertTicks(ctx context.Context, sec models.Security, date int, recs []models.Transaction) error {
	batch := &pgx.Batch{}
	for seq, rec := range recs {
		batch.Queue(tickInsertSQL, sec.Code, date, seq, rec.Time, rec.Price, rec.Volume, rec.Direction)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range recs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert ticks for %s: %w", sec.Code, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (p *PGSink) Close() {
	p.pool.Close()
}
