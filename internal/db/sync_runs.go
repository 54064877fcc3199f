package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/types"
)

// -----------------------------------------------------------------------------
// Sync Run Methods
// -----------------------------------------------------------------------------

// CreateSyncRun records a started sync run, assigning its id when unset.
func (db *DB) CreateSyncRun(ctx context.Context, run *types.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, window_from, window_to, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.WindowFrom, run.WindowTo, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// FinishSyncRun stores the final status, counts, errors and skipped kinds of a run.
func (db *DB) FinishSyncRun(ctx context.Context, run *types.SyncRun) error {
	counts := run.Inserted
	if counts == nil {
		counts = map[string]int{}
	}
	inserted, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal inserted counts: %w", err)
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}
	skipped := run.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	skippedJSON, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped kinds: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE sync_runs
		 SET status = $2, inserted = $3, errors = $4, skipped = $5, finished_at = $6
		 WHERE id = $1`,
		run.ID, run.Status, inserted, errorsJSON, skippedJSON, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns up to limit runs, newest first.
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, window_from, window_to, status, inserted, errors, skipped, started_at, finished_at
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []types.SyncRun{}
	for rows.Next() {
		var run types.SyncRun
		var insertedJSON, errorsJSON, skippedJSON []byte
		if err := rows.Scan(&run.ID, &run.WindowFrom, &run.WindowTo, &run.Status,
			&insertedJSON, &errorsJSON, &skippedJSON, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if len(insertedJSON) > 0 {
			_ = json.Unmarshal(insertedJSON, &run.Inserted)
		}
		if len(errorsJSON) > 0 {
			_ = json.Unmarshal(errorsJSON, &run.Errors)
		}
		if len(skippedJSON) > 0 {
			_ = json.Unmarshal(skippedJSON, &run.Skipped)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}
