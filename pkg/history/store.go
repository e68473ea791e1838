// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists one row per finished flow to a local SQLite
// database, a queryable supplement to the flow_progress.json artifact that
// show_update_progress --history reads across runs. It never feeds back
// into engine decisions — purely additive telemetry.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
)

// Run is one finished flow's history-store row.
type Run struct {
	ID           string
	FlowName     string
	Status       flow.FlowState
	StartedAt    time.Time
	CompletedAt  time.Time
	TotalSteps   int
	FailedSteps  int
	ProgressPath string
}

// Store wraps a SQLite database holding the run-history table.
type Store struct {
	db *sql.DB
}

// DefaultPath returns <logDir>/../factoryflow_history.db, the default
// location named in spec.md §4.4's EXPANSION history store.
func DefaultPath(logDir string) string {
	return logDir + "/../factoryflow_history.db"
}

// Open opens (creating if necessary) the SQLite database at path and runs
// its migration. WAL mode matches the teacher's local-CLI SQLite stores:
// a single writer (one factory_mode run at a time) with concurrent readers
// (show_update_progress --history running alongside it).
func Open(path string) (*Store, error) {
	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open history store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		flow_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		total_steps INTEGER NOT NULL,
		failed_steps INTEGER NOT NULL,
		progress_path TEXT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate history store: %w", err)
	}
	const index = `CREATE INDEX IF NOT EXISTS idx_runs_completed_at ON runs(completed_at DESC)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("migrate history store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts one finished flow's history row.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	const query = `INSERT INTO runs (id, flow_name, status, started_at, completed_at, total_steps, failed_steps, progress_path)
	               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.FlowName,
		string(run.Status),
		run.StartedAt.Format(time.RFC3339),
		run.CompletedAt.Format(time.RFC3339),
		run.TotalSteps,
		run.FailedSteps,
		run.ProgressPath,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// GetRun looks up a single run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	const query = `SELECT id, flow_name, status, started_at, completed_at, total_steps, failed_steps, progress_path
	               FROM runs WHERE id = ?`

	var run Run
	var status, startedAt, completedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.FlowName, &status, &startedAt, &completedAt, &run.TotalSteps, &run.FailedSteps, &run.ProgressPath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, &ffErrors.NotFoundError{Resource: "history run", ID: id}
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}

	run.Status = flow.FlowState(status)
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
	return run, nil
}

// ListRuns returns the most recent runs, newest first, bounded by limit (a
// limit <= 0 means unbounded — used by show_update_progress --history
// without --limit).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, flow_name, status, started_at, completed_at, total_steps, failed_steps, progress_path
	          FROM runs ORDER BY completed_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var status, startedAt, completedAt string
		if err := rows.Scan(&run.ID, &run.FlowName, &status, &startedAt, &completedAt, &run.TotalSteps, &run.FailedSteps, &run.ProgressPath); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.Status = flow.FlowState(status)
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunFromFlowInfo builds a Run ready for RecordRun from a finished flow's
// tracker snapshot.
func RunFromFlowInfo(id, flowName, progressPath string, fi *flow.FlowInfo, startedAt time.Time) Run {
	return Run{
		ID:           id,
		FlowName:     flowName,
		Status:       fi.Status,
		StartedAt:    startedAt,
		CompletedAt:  startedAt.Add(fi.TotalTestTime),
		TotalSteps:   fi.TotalSteps,
		FailedSteps:  fi.FailedStepsCount,
		ProgressPath: progressPath,
	}
}
