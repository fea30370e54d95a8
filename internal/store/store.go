// Package store provides SQLite-backed persistence for the pipeline's own
// bookkeeping: the LLM response cache and the run history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CachedResponse is one stored LLM response, keyed by request hash.
type CachedResponse struct {
	Hash     string
	Model    string
	Response string
	CachedAt time.Time
}

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string
	Snapshot   string
	StartedAt  time.Time
	FinishedAt time.Time
	Verdict    string
	Partial    bool
	Fatal      string
}

// Store wraps a SQLite database for pipeline persistence.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and ensures
// all required tables exist. Use ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS llm_responses (
			hash      TEXT PRIMARY KEY,
			model     TEXT NOT NULL,
			response  TEXT NOT NULL,
			cached_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			snapshot    TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME,
			verdict     TEXT NOT NULL DEFAULT '',
			partial     INTEGER NOT NULL DEFAULT 0,
			fatal       TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// GetResponse returns the cached response for hash. Returns nil if the
// hash has never been stored.
func (s *Store) GetResponse(ctx context.Context, hash string) (*CachedResponse, error) {
	var r CachedResponse
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, model, response, cached_at FROM llm_responses WHERE hash = ?`, hash,
	).Scan(&r.Hash, &r.Model, &r.Response, &r.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return &r, nil
}

// PutResponse stores a response. A second write for the same hash
// replaces the first; both carry equivalent content.
func (s *Store) PutResponse(ctx context.Context, hash, model, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO llm_responses (hash, model, response, cached_at)
		 VALUES (?, ?, ?, datetime('now'))`,
		hash, model, response,
	)
	if err != nil {
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

// DeleteResponse drops a cached response, e.g. one that failed validation.
func (s *Store) DeleteResponse(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM llm_responses WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return nil
}

// CountResponses returns the number of cached responses.
func (s *Store) CountResponses(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

// StartRun records the start of a pipeline run and returns its id.
func (s *Store) StartRun(ctx context.Context, snapshot string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, snapshot, started_at) VALUES (?, ?, ?)`,
		id, snapshot, startedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	partial := 0
	if r.Partial {
		partial = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, verdict = ?, partial = ?, fatal = ? WHERE id = ?`,
		r.FinishedAt.UTC(), r.Verdict, partial, r.Fatal, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", r.ID)
	}
	return nil
}

// ListRuns returns recorded runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, snapshot, started_at, finished_at, verdict, partial, fatal
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
			partial  int
		)
		if err := rows.Scan(&r.ID, &r.Snapshot, &r.StartedAt, &finished, &r.Verdict, &partial, &r.Fatal); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishedAt = finished.Time
		r.Partial = partial != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
