// Package pipeline schedules incremental sync cycles: it decides whether the
// store is stale, fetches the missing window from every source concurrently,
// normalizes and upserts the results, and advances the checkpoint only when
// every call succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/patchnotes/internal/normalize"
	"github.com/jonathan/patchnotes/internal/sources"
	"github.com/jonathan/patchnotes/internal/types"
	"github.com/jonathan/patchnotes/internal/upsert"
)

// Defaults
const (
	DefaultStaleAfter     = 12 * time.Hour
	DefaultAdapterTimeout = 5 * time.Minute
	recentRunsLimit       = 10
)

// CheckpointStore persists the singleton sync checkpoint. GetCheckpoint
// returns nil when none exists. AdvanceCheckpoint must never move the stored
// value backwards.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context) (*types.Checkpoint, error)
	CreateCheckpoint(ctx context.Context, t time.Time) (*types.Checkpoint, error)
	AdvanceCheckpoint(ctx context.Context, t time.Time) (*types.Checkpoint, error)
}

// RunLog records sync cycle history.
type RunLog interface {
	CreateSyncRun(ctx context.Context, run *types.SyncRun) error
	FinishSyncRun(ctx context.Context, run *types.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error)
}

// Upserter writes normalized records.
type Upserter interface {
	Upsert(ctx context.Context, kind types.Kind, records []types.Record) (int, error)
}

// State is the freshness of the store.
type State int

// States
const (
	Fresh State = iota
	Stale
)

func (s State) String() string {
	if s == Stale {
		return "stale"
	}
	return "fresh"
}

// Options configures a Scheduler.
type Options struct {
	// StaleAfter is compared against whole elapsed hours. Defaults to 12h.
	StaleAfter time.Duration
	// AdapterTimeout bounds each (adapter, kind) call. Defaults to 5m.
	AdapterTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// Skipped lists kinds no adapter serves. Cycles still advance the
	// checkpoint over them, so every run records them as a gap.
	Skipped []types.Kind
}

// PairResult is the outcome of one (adapter, kind) call.
type PairResult struct {
	Source   string
	Kind     types.Kind
	Fetched  int
	Inserted int
	Err      error
}

// CycleResult describes a finished cycle. Ran is false when the store was
// fresh and nothing was fetched.
type CycleResult struct {
	Ran        bool
	From       time.Time
	To         time.Time
	Results    []PairResult
	Checkpoint *types.Checkpoint
}

// Inserted sums inserted records per kind selector.
func (r *CycleResult) Inserted() map[string]int {
	out := make(map[string]int)
	for _, pr := range r.Results {
		out[pr.Kind.String()] += pr.Inserted
	}
	return out
}

type cycleCall struct {
	done   chan struct{}
	result *CycleResult
	err    error
}

// Scheduler runs sync cycles. Concurrent SyncIfStale calls share one
// in-flight cycle.
type Scheduler struct {
	pairs       []sources.Pair
	upserter    Upserter
	checkpoints CheckpointStore
	runs        RunLog
	opts        Options

	mu       sync.Mutex
	inflight *cycleCall
}

// NewScheduler creates a Scheduler over every kind of every adapter. runs may
// be nil to skip history.
func NewScheduler(adapters []sources.Adapter, upserter Upserter, checkpoints CheckpointStore, runs RunLog, opts Options) *Scheduler {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = DefaultAdapterTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		pairs:       sources.Pairs(adapters...),
		upserter:    upserter,
		checkpoints: checkpoints,
		runs:        runs,
		opts:        opts,
	}
}

// StateAt classifies a checkpoint at now. Elapsed time is floored to whole
// hours before comparing with StaleAfter; a checkpoint in the future is fresh.
func (s *Scheduler) StateAt(cp types.Checkpoint, now time.Time) State {
	elapsed := now.Sub(cp.LastUpdated)
	if elapsed <= 0 {
		return Fresh
	}
	if elapsed.Truncate(time.Hour) >= s.opts.StaleAfter {
		return Stale
	}
	return Fresh
}

// SyncIfStale runs a cycle for [lastUpdated, now] when the store is stale.
// A missing checkpoint is created at now and counts as fresh. Callers that
// arrive while a cycle is running wait for it and share its result.
func (s *Scheduler) SyncIfStale(ctx context.Context) (*CycleResult, error) {
	return s.shared(ctx, false)
}

// ForceSync runs a cycle for [lastUpdated, now] regardless of staleness.
func (s *Scheduler) ForceSync(ctx context.Context) (*CycleResult, error) {
	return s.shared(ctx, true)
}

func (s *Scheduler) shared(ctx context.Context, force bool) (*CycleResult, error) {
	s.mu.Lock()
	call := s.inflight
	if call == nil {
		call = &cycleCall{done: make(chan struct{})}
		s.inflight = call
		// The cycle outlives any single caller; pair timeouts bound it.
		go func() {
			call.result, call.err = s.syncFromCheckpoint(context.WithoutCancel(ctx), force)
			s.mu.Lock()
			s.inflight = nil
			s.mu.Unlock()
			close(call.done)
		}()
	}
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) syncFromCheckpoint(ctx context.Context, force bool) (*CycleResult, error) {
	now := s.opts.Now().UTC()

	cp, err := s.checkpoints.GetCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		cp, err = s.checkpoints.CreateCheckpoint(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint: %w", err)
		}
		log.Printf("[sync] created checkpoint at %s", cp.LastUpdated.Format(time.RFC3339))
		if !force {
			return &CycleResult{Checkpoint: cp}, nil
		}
	}

	if cp.LastUpdated.After(now) {
		// The checkpoint never moves backwards, so no cycle can run until the
		// clock passes it.
		log.Printf("[sync] warning: checkpoint %s is ahead of the clock (%s), skipping sync until then; use preload to fetch a window explicitly",
			cp.LastUpdated.Format(time.RFC3339), now.Format(time.RFC3339))
		return &CycleResult{Checkpoint: cp}, nil
	}

	if !force && s.StateAt(*cp, now) == Fresh {
		return &CycleResult{Checkpoint: cp}, nil
	}

	result, err := s.run(ctx, cp.LastUpdated, now)
	if err != nil {
		result.Checkpoint = cp
		return result, err
	}

	advanced, err := s.checkpoints.AdvanceCheckpoint(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	result.Checkpoint = advanced
	log.Printf("[sync] checkpoint advanced to %s", advanced.LastUpdated.Format(time.RFC3339))
	return result, nil
}

// Sync runs a cycle for an explicit window without reading or moving the
// checkpoint.
func (s *Scheduler) Sync(ctx context.Context, from, to time.Time) (*CycleResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid window: %s is before %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return s.run(ctx, from.UTC(), to.UTC())
}

// run fetches, normalizes and upserts every pair concurrently. Adapter
// failures are collected without disturbing siblings; a store failure
// cancels the remaining calls.
func (s *Scheduler) run(ctx context.Context, from, to time.Time) (*CycleResult, error) {
	log.Printf("[sync] starting cycle for %s..%s across %d calls",
		from.Format(time.RFC3339), to.Format(time.RFC3339), len(s.pairs))

	run := &types.SyncRun{
		WindowFrom: from,
		WindowTo:   to,
		Status:     types.SyncStatusRunning,
		StartedAt:  s.opts.Now().UTC(),
	}
	for _, kind := range s.opts.Skipped {
		run.Skipped = append(run.Skipped, kind.String())
	}
	if len(run.Skipped) > 0 {
		log.Printf("[sync] warning: %v not fetched for this window; backfill with preload once configured", run.Skipped)
	}
	s.recordStart(ctx, run)

	results := make([]PairResult, len(s.pairs))
	g, gCtx := errgroup.WithContext(ctx)
	for i, pair := range s.pairs {
		g.Go(func() error {
			results[i] = s.runPair(gCtx, pair, from, to)
			var writeErr *upsert.StoreWriteError
			if errors.As(results[i].Err, &writeErr) {
				return writeErr
			}
			return nil
		})
	}
	storeErr := g.Wait()

	result := &CycleResult{Ran: true, From: from, To: to, Results: results}

	var failures []PairFailure
	for _, pr := range results {
		if pr.Err != nil {
			failures = append(failures, PairFailure{Source: pr.Source, Kind: pr.Kind, Err: pr.Err})
		}
	}

	run.Inserted = result.Inserted()
	for _, f := range failures {
		run.Errors = append(run.Errors, fmt.Sprintf("%s %s: %v", f.Source, f.Kind, f.Err))
	}
	run.Status = types.SyncStatusCompleted
	if len(failures) > 0 {
		run.Status = types.SyncStatusFailed
	}
	s.recordFinish(ctx, run)

	if len(failures) > 0 {
		if storeErr != nil {
			log.Printf("[sync] cycle aborted by store failure: %v", storeErr)
		}
		cycleErr := &CycleError{From: from, To: to, Failures: failures}
		log.Printf("[sync] %v", cycleErr)
		return result, cycleErr
	}

	log.Printf("[sync] cycle complete: inserted %v", run.Inserted)
	return result, nil
}

func (s *Scheduler) runPair(ctx context.Context, pair sources.Pair, from, to time.Time) PairResult {
	pr := PairResult{Source: pair.Adapter.Name(), Kind: pair.Kind}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.AdapterTimeout)
	defer cancel()

	records, err := pair.Adapter.FetchWindow(callCtx, pair.Kind, from, to)
	if err != nil {
		log.Printf("[sync] %s %s failed: %v", pr.Source, pr.Kind, err)
		pr.Err = err
		return pr
	}
	pr.Fetched = len(records)

	inserted, err := s.upserter.Upsert(ctx, pair.Kind, normalize.All(records))
	if err != nil {
		log.Printf("[sync] %s %s upsert failed: %v", pr.Source, pr.Kind, err)
		pr.Err = err
		return pr
	}
	pr.Inserted = inserted
	return pr
}

func (s *Scheduler) recordStart(ctx context.Context, run *types.SyncRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.CreateSyncRun(ctx, run); err != nil {
		log.Printf("[sync] warning: failed to record sync run: %v", err)
	}
}

func (s *Scheduler) recordFinish(ctx context.Context, run *types.SyncRun) {
	if s.runs == nil {
		return
	}
	finished := s.opts.Now().UTC()
	run.FinishedAt = &finished
	if err := s.runs.FinishSyncRun(ctx, run); err != nil {
		log.Printf("[sync] warning: failed to finish sync run: %v", err)
	}
}

// Status reports the checkpoint, its freshness and recent runs.
func (s *Scheduler) Status(ctx context.Context) (*types.SyncStatus, error) {
	cp, err := s.checkpoints.GetCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	status := &types.SyncStatus{RecentRuns: []types.SyncRun{}}
	if cp != nil {
		last := cp.LastUpdated
		status.LastUpdated = &last
		status.Stale = s.StateAt(*cp, s.opts.Now()) == Stale
	}
	if s.runs != nil {
		runs, err := s.runs.ListSyncRuns(ctx, recentRunsLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list sync runs: %w", err)
		}
		if runs != nil {
			status.RecentRuns = runs
		}
	}
	return status, nil
}
