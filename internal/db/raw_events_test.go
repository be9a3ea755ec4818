package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"eventinsight/internal/db"
	"eventinsight/internal/db/dbtest"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestRawEventStore_AppendDefaults(t *testing.T) {
	store := db.NewRawEventStore(dbtest.Open(t))
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	ev := &db.RawEvent{
		EventTypeID: "signup",
		TenantID:    "acme",
		Payload:     datatypes.JSONMap{"plan": "pro"},
		Processed:   true,
	}
	require.NoError(t, store.Append(ctx, ev))

	assert.NotZero(t, ev.ID)
	assert.False(t, ev.Processed, "new events always start unprocessed")
	assert.True(t, ev.OccurredAt.After(before))
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())

	pending, err := store.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pro", pending[0].Payload["plan"])
}

func TestRawEventStore_AppendKeepsExplicitTimeAndDuplicates(t *testing.T) {
	store := db.NewRawEventStore(dbtest.Open(t))
	ctx := context.Background()

	at := time.Date(2025, 3, 14, 11, 30, 0, 0, time.FixedZone("CET", 3600))
	for range 2 {
		require.NoError(t, store.Append(ctx, &db.RawEvent{
			EventTypeID: "click",
			TenantID:    "acme",
			SessionID:   "s1",
			OccurredAt:  at,
		}))
	}

	pending, err := store.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.NotEqual(t, pending[0].ID, pending[1].ID)
	assert.True(t, pending[0].OccurredAt.Equal(at))
}

func TestRawEventStore_FetchUnprocessedOrderAndLimit(t *testing.T) {
	store := db.NewRawEventStore(dbtest.Open(t))
	ctx := context.Background()

	events := []db.RawEvent{
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(30 * time.Minute)},
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(10 * time.Minute)},
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(50 * time.Minute)},
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(20 * time.Minute)},
	}
	require.NoError(t, store.AppendBatch(ctx, events))

	got, err := store.FetchUnprocessed(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].OccurredAt.Equal(base.Add(10*time.Minute)))
	assert.True(t, got[1].OccurredAt.Equal(base.Add(20*time.Minute)))
	assert.True(t, got[2].OccurredAt.Equal(base.Add(30*time.Minute)))

	none, err := store.FetchUnprocessed(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRawEventStore_MarkProcessedIsIdempotent(t *testing.T) {
	store := db.NewRawEventStore(dbtest.Open(t))
	ctx := context.Background()

	events := []db.RawEvent{
		{EventTypeID: "e", TenantID: "t", OccurredAt: base},
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(time.Minute)},
		{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, store.AppendBatch(ctx, events))

	ids := []uint{events[0].ID, events[1].ID}
	marked, err := store.MarkProcessed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	marked, err = store.MarkProcessed(ctx, ids)
	require.NoError(t, err)
	assert.Zero(t, marked, "marking processed rows again is a no-op")

	marked, err = store.MarkProcessed(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, marked)

	pending, err := store.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events[2].ID, pending[0].ID)

	backlog, err := store.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog)
}

func TestRawEventStore_MarkProcessedChunks(t *testing.T) {
	store := db.NewRawEventStore(dbtest.Open(t))
	ctx := context.Background()

	events := make([]db.RawEvent, 2500)
	for i := range events {
		events[i] = db.RawEvent{EventTypeID: "e", TenantID: "t", OccurredAt: base.Add(time.Duration(i) * time.Second)}
	}
	require.NoError(t, store.AppendBatch(ctx, events))

	ids := make([]uint, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	marked, err := store.MarkProcessed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), marked)

	backlog, err := store.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}
