// Package postgres records completed brief runs in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "brief_runs"

// Config controls the Postgres connection pool used for run history.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTable issues CREATE TABLE IF NOT EXISTS on startup.
	CreateTable bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// HistoryStore implements brief.HistoryRecorder.
type HistoryStore struct {
	pool  pool
	table string
}

var _ brief.HistoryRecorder = (*HistoryStore)(nil)

// NewHistoryStore connects to Postgres using cfg.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &HistoryStore{pool: p, table: table}
	if cfg.CreateTable {
		if err := s.EnsureTable(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(p pool, table string) (*HistoryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{pool: p, table: name}, nil
}

// EnsureTable creates the history table when it does not exist.
func (s *HistoryStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	content_id    TEXT NOT NULL,
	focus_keyword TEXT NOT NULL,
	topic_theme   TEXT NOT NULL,
	buyer_persona TEXT NOT NULL,
	filename      TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	serp_count    INTEGER NOT NULL,
	model_calls   INTEGER NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordRun upserts the summary of a completed run.
func (s *HistoryStore) RecordRun(ctx context.Context, run brief.RunSummary) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	content_id,
	focus_keyword,
	topic_theme,
	buyer_persona,
	filename,
	content_hash,
	serp_count,
	model_calls,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id) DO UPDATE SET
	filename = EXCLUDED.filename,
	content_hash = EXCLUDED.content_hash,
	model_calls = EXCLUDED.model_calls,
	completed_at = EXCLUDED.completed_at`, s.table)

	args := []any{
		run.RunID,
		run.ContentID,
		run.FocusKeyword,
		run.TopicTheme,
		run.BuyerPersona,
		run.Filename,
		run.ContentHash,
		run.SERPCount,
		run.ModelCalls,
		run.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]brief.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT run_id, content_id, focus_keyword, topic_theme, buyer_persona,
	filename, content_hash, serp_count, model_calls, completed_at
FROM %s
ORDER BY completed_at DESC
LIMIT $1`, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []brief.RunSummary
	for rows.Next() {
		var r brief.RunSummary
		if err := rows.Scan(
			&r.RunID,
			&r.ContentID,
			&r.FocusKeyword,
			&r.TopicTheme,
			&r.BuyerPersona,
			&r.Filename,
			&r.ContentHash,
			&r.SERPCount,
			&r.ModelCalls,
			&r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
