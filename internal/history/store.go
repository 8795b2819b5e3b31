// Package history records the outcome of each run. Tokens, codes and credentials are never stored.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signin-token-sync/internal/models"

	_ "modernc.org/sqlite"
)

const (
	defaultLimit = 20
	// fixed width so text ordering matches time ordering
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and initializes the schema
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends the outcome of a run
func (s *Store) Record(ctx context.Context, r models.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, status, reason, detail, signed_in, forwarded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		r.StartedAt.UTC().Format(timeLayout),
		r.FinishedAt.UTC().Format(timeLayout),
		string(r.Status),
		string(r.Reason),
		r.Detail,
		r.SignedIn,
		r.Forwarded,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. A limit <= 0 uses the default of 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, reason, detail, signed_in, forwarded
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []models.Result
	for rows.Next() {
		var (
			r                   models.Result
			started, finished   string
			status, reason      string
			signedIn, forwarded bool
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &status, &reason, &r.Detail, &signedIn, &forwarded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Status = models.RunStatus(status)
		r.Reason = models.Reason(reason)
		r.SignedIn = signedIn
		r.Forwarded = forwarded
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		results = append(results, r)
	}

	return results, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
