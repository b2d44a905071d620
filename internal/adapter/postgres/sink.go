// Package postgres archives the cleaned table in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

const defaultBatchSize = 500

// DB is the subset of *pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Open connects a pool and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Sink writes cleaned rows keyed by (city, date). Rerunning a window
// overwrites the overlapping days; days that have left the lookback window
// are kept, so the table accumulates history while merged_data.csv only
// holds the latest window.
// It implements pipeline.TableSink.
type Sink struct {
	db        DB
	table     string
	batchSize int
	logger    *slog.Logger
}

// NewSink creates a Sink for table, which may be schema-qualified ("public.observations").
func NewSink(db DB, table string, logger *slog.Logger) (*Sink, error) {
	ident, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &Sink{db: db, table: ident, batchSize: defaultBatchSize, logger: logger}, nil
}

func quoteTable(table string) (string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// EnsureTable creates the target table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		city             TEXT             NOT NULL,
		date             DATE             NOT NULL,
		temp_max         DOUBLE PRECISION NOT NULL,
		temp_min         DOUBLE PRECISION NOT NULL,
		energy_usage_mwh DOUBLE PRECISION NOT NULL,
		updated_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (city, date)
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// WriteCleaned upserts rows in batches and returns how many were written.
func (s *Sink) WriteCleaned(ctx context.Context, rows []domain.CleanedRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO ` + s.table + `
		(city, date, temp_max, temp_min, energy_usage_mwh)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (city, date) DO UPDATE SET
			temp_max = EXCLUDED.temp_max,
			temp_min = EXCLUDED.temp_min,
			energy_usage_mwh = EXCLUDED.energy_usage_mwh,
			updated_at = now()`

	total := 0
	for i := 0; i < len(rows); i += s.batchSize {
		j := min(i+s.batchSize, len(rows))

		b := &pgx.Batch{}
		for _, r := range rows[i:j] {
			b.Queue(query, r.City, r.Date, r.TempMaxF, r.TempMinF, r.EnergyUsageMWh)
		}

		br := s.db.SendBatch(ctx, b)
		for k := 0; k < b.Len(); k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("upsert into %s: %w", s.table, err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("upsert into %s: %w", s.table, err)
		}
	}

	s.logger.Info("cleaned rows upserted", "table", s.table, "rows", total)
	return total, nil
}
