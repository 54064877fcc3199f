package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/patchnotes/internal/memstore"
	"github.com/jonathan/patchnotes/internal/sources"
	"github.com/jonathan/patchnotes/internal/types"
	"github.com/jonathan/patchnotes/internal/upsert"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type window struct{ from, to time.Time }

// fakeAdapter serves canned records per kind and records every window asked for.
type fakeAdapter struct {
	name    string
	kinds   []types.Kind
	records map[types.Kind][]types.Record
	err     error
	block   chan struct{}

	mu      sync.Mutex
	windows []window
	calls   atomic.Int32
}

func (f *fakeAdapter) Name() string        { return f.name }
func (f *fakeAdapter) Kinds() []types.Kind { return f.kinds }

func (f *fakeAdapter) FetchWindow(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.windows = append(f.windows, window{from, to})
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, &sources.FetchFailure{Source: f.name, Kind: kind, Cause: f.err}
	}
	return f.records[kind], nil
}

func ordersAdapter() *fakeAdapter {
	return &fakeAdapter{
		name:  "orders",
		kinds: []types.Kind{types.KindExecutiveOrder},
		records: map[types.Kind][]types.Record{
			types.KindExecutiveOrder: {
				{"title": "EO A", "signing_date": "2024-06-01"},
				{"title": "EO B", "signing_date": "2024-06-01"},
			},
		},
	}
}

func rulesAdapter() *fakeAdapter {
	return &fakeAdapter{
		name:  "rules",
		kinds: []types.Kind{types.KindRule, types.KindProposedRule},
		records: map[types.Kind][]types.Record{
			types.KindRule:         {{"title": "R", "docketId": "1", "postedDate": "2024-06-01T10:00:00Z"}},
			types.KindProposedRule: {{"title": "P", "docketId": "2", "postedDate": "2024-06-01T11:00:00Z"}},
		},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestScheduler(store *memstore.Store, c *clock, adapters ...sources.Adapter) *Scheduler {
	return NewScheduler(adapters, upsert.New(store), store, store, Options{Now: c.Now})
}

func TestSyncIfStale_ColdStartCreatesCheckpoint(t *testing.T) {
	store := memstore.New()
	c := &clock{now: t0}
	orders := ordersAdapter()
	s := newTestScheduler(store, c, orders)

	result, err := s.SyncIfStale(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Ran)
	assert.Zero(t, orders.calls.Load())

	cp, err := store.GetCheckpoint(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, t0.Equal(cp.LastUpdated))
}

func TestSyncIfStale_FreshIsNoop(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
	}{
		{name: "eleven hours", elapsed: 11 * time.Hour},
		{name: "just under twelve hours", elapsed: 12*time.Hour - time.Minute},
		{name: "checkpoint in the future", elapsed: -time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			_, err := store.CreateCheckpoint(ctx, t0)
			require.NoError(t, err)

			orders := ordersAdapter()
			s := newTestScheduler(store, &clock{now: t0.Add(tt.elapsed)}, orders)

			result, err := s.SyncIfStale(ctx)
			require.NoError(t, err)
			assert.False(t, result.Ran)
			assert.Zero(t, orders.calls.Load())

			cp, _ := store.GetCheckpoint(ctx)
			assert.True(t, t0.Equal(cp.LastUpdated))
		})
	}
}

func TestSyncFromFutureCheckpoint_WarnsAndSkips(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ctx := context.Background()
	store := memstore.New()
	future := t0.Add(48 * time.Hour)
	_, err := store.CreateCheckpoint(ctx, future)
	require.NoError(t, err)

	orders := ordersAdapter()
	s := newTestScheduler(store, &clock{now: t0}, orders)

	for _, run := range []func(context.Context) (*CycleResult, error){s.SyncIfStale, s.ForceSync} {
		result, err := run(ctx)
		require.NoError(t, err)
		assert.False(t, result.Ran)
	}
	assert.Zero(t, orders.calls.Load())
	assert.Contains(t, buf.String(), "ahead of the clock")

	cp, _ := store.GetCheckpoint(ctx)
	assert.True(t, future.Equal(cp.LastUpdated))
}

func TestSyncIfStale_StaleFetchesWindowAndAdvances(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	now := t0.Add(13 * time.Hour)
	orders := ordersAdapter()
	rules := rulesAdapter()
	s := newTestScheduler(store, &clock{now: now}, orders, rules)

	result, err := s.SyncIfStale(ctx)
	require.NoError(t, err)
	require.True(t, result.Ran)
	assert.Len(t, result.Results, 3)
	assert.Equal(t, map[string]int{"execOrders": 2, "regulations": 1, "proposedRegulations": 1}, result.Inserted())

	require.Len(t, orders.windows, 1)
	assert.True(t, t0.Equal(orders.windows[0].from))
	assert.True(t, now.Equal(orders.windows[0].to))
	assert.Len(t, rules.windows, 2)

	cp, err := store.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.True(t, now.Equal(cp.LastUpdated))

	// Dates were normalized before storage, so range reads find them.
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stored, err := store.FindByDateRange(ctx, types.KindExecutiveOrder, day, day)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	_, isTime := stored[0]["signing_date"].(time.Time)
	assert.True(t, isTime)
}

func TestSyncIfStale_FailureFreezesCheckpointAndIsolatesSiblings(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	orders := ordersAdapter()
	orders.err = errors.New("upstream 503")
	rules := rulesAdapter()
	s := newTestScheduler(store, &clock{now: t0.Add(24 * time.Hour)}, orders, rules)

	result, err := s.SyncIfStale(ctx)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Failures, 1)
	assert.Equal(t, "orders", cycleErr.Failures[0].Source)
	assert.Equal(t, types.KindExecutiveOrder, cycleErr.Failures[0].Kind)

	var failure *sources.FetchFailure
	assert.ErrorAs(t, err, &failure)

	assert.Equal(t, 1, store.Count(types.KindRule), "sibling results are still stored")
	assert.Equal(t, 1, store.Count(types.KindProposedRule))
	assert.Zero(t, store.Count(types.KindExecutiveOrder))
	require.NotNil(t, result)
	assert.True(t, t0.Equal(result.Checkpoint.LastUpdated))

	cp, _ := store.GetCheckpoint(ctx)
	assert.True(t, t0.Equal(cp.LastUpdated), "checkpoint unchanged after a failed cycle")

	// The next cycle retries the same window and, once healthy, advances.
	orders.err = nil
	_, err = s.SyncIfStale(ctx)
	require.NoError(t, err)
	assert.True(t, t0.Equal(orders.windows[1].from))
	assert.Equal(t, 2, store.Count(types.KindExecutiveOrder))
	assert.Equal(t, 1, store.Count(types.KindRule), "re-fetched records are not duplicated")
}

type failingUpserter struct{}

func (failingUpserter) Upsert(_ context.Context, kind types.Kind, records []types.Record) (int, error) {
	return 0, &upsert.StoreWriteError{Kind: kind, Count: len(records), Cause: errors.New("disk full")}
}

func TestSyncIfStale_StoreFailureFailsCycle(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	s := NewScheduler([]sources.Adapter{ordersAdapter()}, failingUpserter{}, store, store, Options{Now: (&clock{now: t0.Add(13 * time.Hour)}).Now})
	_, err = s.SyncIfStale(ctx)

	var writeErr *upsert.StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	cp, _ := store.GetCheckpoint(ctx)
	assert.True(t, t0.Equal(cp.LastUpdated))
}

func TestSyncIfStale_AdapterTimeout(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	slow := ordersAdapter()
	slow.block = make(chan struct{})
	defer close(slow.block)

	s := NewScheduler([]sources.Adapter{slow}, upsert.New(store), store, store, Options{
		Now:            (&clock{now: t0.Add(13 * time.Hour)}).Now,
		AdapterTimeout: 20 * time.Millisecond,
	})
	_, err = s.SyncIfStale(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSyncIfStale_ConcurrentCallersShareCycle(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	orders := ordersAdapter()
	orders.block = make(chan struct{})
	s := newTestScheduler(store, &clock{now: t0.Add(13 * time.Hour)}, orders)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*CycleResult, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = s.SyncIfStale(ctx)
		}()
	}

	require.Eventually(t, func() bool { return orders.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight cycle.
	time.Sleep(20 * time.Millisecond)
	close(orders.block)
	wg.Wait()

	assert.Equal(t, int32(1), orders.calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.True(t, r.Ran)
	}
}

func TestSyncIfStale_CallerCancellation(t *testing.T) {
	store := memstore.New()
	_, err := store.CreateCheckpoint(context.Background(), t0)
	require.NoError(t, err)

	orders := ordersAdapter()
	orders.block = make(chan struct{})
	s := newTestScheduler(store, &clock{now: t0.Add(13 * time.Hour)}, orders)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SyncIfStale(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	close(orders.block)
}

func TestForceSync_IgnoresStaleness(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	now := t0.Add(time.Hour)
	orders := ordersAdapter()
	s := newTestScheduler(store, &clock{now: now}, orders)

	result, err := s.ForceSync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, int32(1), orders.calls.Load())
	assert.True(t, now.Equal(result.Checkpoint.LastUpdated))
}

func TestSync_ExplicitWindowLeavesCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	orders := ordersAdapter()
	s := newTestScheduler(store, &clock{now: t0.Add(48 * time.Hour)}, orders)

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	result, err := s.Sync(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.True(t, from.Equal(orders.windows[0].from))
	assert.True(t, to.Equal(orders.windows[0].to))

	cp, _ := store.GetCheckpoint(ctx)
	assert.True(t, t0.Equal(cp.LastUpdated))

	_, err = s.Sync(ctx, to, from)
	assert.Error(t, err)
}

func TestCheckpoint_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	later := t0.Add(30 * time.Hour)
	_, err := store.CreateCheckpoint(ctx, later)
	require.NoError(t, err)

	// A clock behind the checkpoint sees a fresh store and leaves it alone.
	s := newTestScheduler(store, &clock{now: t0}, ordersAdapter())
	_, err = s.SyncIfStale(ctx)
	require.NoError(t, err)

	_, err = s.ForceSync(ctx)
	require.NoError(t, err)

	cp, _ := store.GetCheckpoint(ctx)
	assert.True(t, later.Equal(cp.LastUpdated))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := &clock{now: t0}
	s := newTestScheduler(store, c, ordersAdapter())

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastUpdated)
	assert.Empty(t, status.RecentRuns)

	_, err = store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)
	c.Set(t0.Add(13 * time.Hour))

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Stale)

	_, err = s.SyncIfStale(ctx)
	require.NoError(t, err)

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Stale)
	require.Len(t, status.RecentRuns, 1)
	assert.Equal(t, types.SyncStatusCompleted, status.RecentRuns[0].Status)
	assert.Equal(t, 2, status.RecentRuns[0].Inserted["execOrders"])
	assert.NotNil(t, status.RecentRuns[0].FinishedAt)
}

func TestRun_RecordsSkippedKinds(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.CreateCheckpoint(ctx, t0)
	require.NoError(t, err)

	s := NewScheduler([]sources.Adapter{ordersAdapter()}, upsert.New(store), store, store, Options{
		Now:     (&clock{now: t0.Add(13 * time.Hour)}).Now,
		Skipped: []types.Kind{types.KindBill},
	})
	_, err = s.SyncIfStale(ctx)
	require.NoError(t, err)

	runs, err := store.ListSyncRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SyncStatusCompleted, runs[0].Status)
	assert.Equal(t, []string{"bills"}, runs[0].Skipped)
}

func TestStateAt(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, Options{})
	cp := types.Checkpoint{LastUpdated: t0}

	assert.Equal(t, Fresh, s.StateAt(cp, t0))
	assert.Equal(t, Fresh, s.StateAt(cp, t0.Add(11*time.Hour+59*time.Minute)))
	assert.Equal(t, Stale, s.StateAt(cp, t0.Add(12*time.Hour)))
	assert.Equal(t, Stale, s.StateAt(cp, t0.Add(13*time.Hour)))
	assert.Equal(t, "stale", Stale.String())
}
