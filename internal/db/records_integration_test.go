package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/patchnotes/internal/normalize"
	"github.com/jonathan/patchnotes/internal/types"
	"github.com/jonathan/patchnotes/internal/upsert"
)

func TestIntegration_InsertIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	// A unique title keeps runs against a shared database independent.
	title := "Integration " + uuid.New().String()
	posted := time.Date(1999, 4, 5, 6, 0, 0, 0, time.UTC)
	records := normalize.All([]types.Record{
		{"title": title, "docketId": "A", "postedDate": posted.Format(time.RFC3339)},
		{"title": title, "docketId": "B", "postedDate": posted.Format(time.RFC3339)},
		{"title": title, "docketId": "A", "postedDate": posted.Format(time.RFC3339)},
	})

	engine := upsert.New(db)
	inserted, err := engine.Upsert(ctx, types.KindRule, records)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	again, err := engine.Upsert(ctx, types.KindRule, records)
	require.NoError(t, err)
	assert.Zero(t, again)

	stored, err := db.FindByDateRange(ctx, types.KindRule, posted, posted)
	require.NoError(t, err)
	var mine []types.Record
	for _, r := range stored {
		if r.String("title") == title {
			mine = append(mine, r)
		}
	}
	require.Len(t, mine, 2)
	assert.Equal(t, posted.Format(time.RFC3339), mine[0]["postedDate"])

	id, ok := mine[0].ID()
	require.True(t, ok)
	byID, err := db.FindByIDs(ctx, types.KindRule, []uuid.UUID{id})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, mine[0]["docketId"], byID[0]["docketId"])

	none, err := db.FindByIDs(ctx, types.KindProposedRule, []uuid.UUID{id})
	require.NoError(t, err)
	assert.Empty(t, none, "ids are scoped to their kind")
}

func TestIntegration_ConcurrentUpsertsDoNotDuplicate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	title := "Concurrent " + uuid.New().String()
	signed := time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []types.Record{{"title": title, "signing_date": signed}}

	engine := upsert.New(db)
	var wg sync.WaitGroup
	totals := make([]int, 4)
	for i := range totals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := engine.Upsert(ctx, types.KindExecutiveOrder, records)
			assert.NoError(t, err)
			totals[i] = n
		}()
	}
	wg.Wait()

	sum := 0
	for _, n := range totals {
		sum += n
	}
	assert.Equal(t, 1, sum)
}
