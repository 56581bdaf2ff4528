package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/milad-o/agenticflow/pkg/models"
)

// ErrRunNotFound indicates a lookup for a run ID with no recorded row.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded workflow execution.
type Run struct {
	ID          string
	Workflow    string
	Total       int
	Completed   int
	Failed      int
	Cancelled   int
	Blocked     int
	SuccessRate float64
	StartedAt   time.Time
	Duration    time.Duration
	Tasks       []RunTask
}

// RunTask is one task outcome within a recorded run.
type RunTask struct {
	TaskID        string
	Name          string
	State         models.TaskState
	Blocked       bool
	Attempts      int
	ErrorCategory string
	ErrorMessage  string
	Duration      time.Duration
}

// RecordRun persists a finished workflow summary and returns the run ID.
func (db *DB) RecordRun(workflow string, summary *models.WorkflowSummary) (string, error) {
	runID := uuid.New().String()

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, workflow, total, completed, failed, cancelled, blocked, success_rate, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, workflow, summary.Total, summary.Completed, summary.Failed,
		summary.Cancelled, summary.Blocked, summary.SuccessRate,
		formatTime(summary.StartedAt), summary.Duration.Milliseconds())
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, outcome := range summary.Tasks {
		var category, message sql.NullString
		if outcome.Error != nil {
			category = sql.NullString{String: string(outcome.Error.Category), Valid: true}
			message = sql.NullString{String: outcome.Error.Message, Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO run_tasks (run_id, task_id, name, state, blocked, attempts, error_category, error_message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, outcome.ID, outcome.Name, string(outcome.State),
			boolToInt(outcome.Blocked), outcome.Attempts, category, message,
			outcome.Duration.Milliseconds())
		if err != nil {
			tx.Rollback()
			return "", fmt.Errorf("insert run task %s: %w", outcome.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first, without task detail.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, workflow, total, completed, failed, cancelled, blocked, success_rate, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its per-task outcomes.
func (db *DB) GetRun(runID string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, workflow, total, completed, failed, cancelled, blocked, success_rate, started_at, duration_ms
		FROM runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	rows, err := db.conn.Query(`
		SELECT task_id, name, state, blocked, attempts, error_category, error_message, duration_ms
		FROM run_tasks WHERE run_id = ? ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rt RunTask
		var blocked int
		var state string
		var category, message sql.NullString
		var durationMS int64
		if err := rows.Scan(&rt.TaskID, &rt.Name, &state, &blocked, &rt.Attempts, &category, &message, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run task: %w", err)
		}
		rt.State = models.TaskState(state)
		rt.Blocked = blocked != 0
		rt.ErrorCategory = category.String
		rt.ErrorMessage = message.String
		rt.Duration = time.Duration(durationMS) * time.Millisecond
		run.Tasks = append(run.Tasks, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// ResolveRunID expands a run ID prefix to the full ID. It fails when the
// prefix matches no run or more than one.
func (db *DB) ResolveRunID(prefix string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`SELECT id FROM runs WHERE id LIKE ? LIMIT 2`, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("resolve run id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// PurgeOldRuns deletes runs older than the given duration and returns the
// number deleted.
func (db *DB) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var startedAt string
	var durationMS int64
	err := s.Scan(&run.ID, &run.Workflow, &run.Total, &run.Completed,
		&run.Failed, &run.Cancelled, &run.Blocked, &run.SuccessRate,
		&startedAt, &durationMS)
	if err != nil {
		return Run{}, err
	}

	ts, err := parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = ts
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
