// Package sqlite records completed brief runs in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

//go:embed schema.sql
var schema string

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// HistoryStore implements brief.HistoryRecorder.
type HistoryStore struct {
	db *sql.DB
}

var _ brief.HistoryRecorder = (*HistoryStore)(nil)

// Open opens (or creates) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*HistoryStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to an open database.
func New(ctx context.Context, db *sql.DB) (*HistoryStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// RecordRun upserts the summary of a completed run.
func (s *HistoryStore) RecordRun(ctx context.Context, run brief.RunSummary) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO brief_runs (
	run_id, content_id, focus_keyword, topic_theme, buyer_persona,
	filename, content_hash, serp_count, model_calls, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
	filename = excluded.filename,
	content_hash = excluded.content_hash,
	model_calls = excluded.model_calls,
	completed_at = excluded.completed_at`,
		run.RunID,
		run.ContentID,
		run.FocusKeyword,
		run.TopicTheme,
		run.BuyerPersona,
		run.Filename,
		run.ContentHash,
		run.SERPCount,
		run.ModelCalls,
		run.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]brief.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, content_id, focus_keyword, topic_theme, buyer_persona,
	filename, content_hash, serp_count, model_calls, completed_at
FROM brief_runs
ORDER BY completed_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []brief.RunSummary
	for rows.Next() {
		var (
			r         brief.RunSummary
			completed string
		)
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
			&completed,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.CompletedAt, err = time.Parse(timeLayout, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completed, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
