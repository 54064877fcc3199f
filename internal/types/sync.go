package types

import (
	"time"

	"github.com/google/uuid"
)

// SyncRun status values
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncRun is the persisted history entry for one sync cycle.
type SyncRun struct {
	ID         uuid.UUID      `json:"id"`
	WindowFrom time.Time      `json:"window_from"`
	WindowTo   time.Time      `json:"window_to"`
	Status     string         `json:"status"`
	Inserted   map[string]int `json:"inserted,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	Skipped    []string       `json:"skipped,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// SyncStatus summarizes the freshness of the store for API responses.
type SyncStatus struct {
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Stale       bool       `json:"stale"`
	RecentRuns  []SyncRun  `json:"recent_runs"`
}
