package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/patchnotes/internal/types"
)

// GetCheckpoint returns the sync checkpoint, or nil if none exists.
func (db *DB) GetCheckpoint(ctx context.Context) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := db.pool.QueryRow(ctx, `SELECT last_updated FROM sync_checkpoint WHERE id`).Scan(&cp.LastUpdated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	cp.LastUpdated = cp.LastUpdated.UTC()
	return &cp, nil
}

// CreateCheckpoint creates the checkpoint at t unless one already exists and
// returns the stored checkpoint.
func (db *DB) CreateCheckpoint(ctx context.Context, t time.Time) (*types.Checkpoint, error) {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sync_checkpoint (id, last_updated) VALUES (TRUE, $1)
		 ON CONFLICT (id) DO NOTHING`,
		t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return db.GetCheckpoint(ctx)
}

// AdvanceCheckpoint moves the checkpoint forward to t. The stored value is
// the later of the current one and t.
func (db *DB) AdvanceCheckpoint(ctx context.Context, t time.Time) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := db.pool.QueryRow(ctx,
		`INSERT INTO sync_checkpoint (id, last_updated) VALUES (TRUE, $1)
		 ON CONFLICT (id) DO UPDATE
		 SET last_updated = GREATEST(sync_checkpoint.last_updated, EXCLUDED.last_updated)
		 RETURNING last_updated`,
		t,
	).Scan(&cp.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	cp.LastUpdated = cp.LastUpdated.UTC()
	return &cp, nil
}
