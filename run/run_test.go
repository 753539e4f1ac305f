package run_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/run"
)

func TestMemoryStore_UpsertLoad_DefensiveCopy(t *testing.T) {
	store := run.NewMemoryStore()
	ctx := context.Background()

	rec := run.Record{
		TaskID:    "task-1",
		AgentID:   "agent-1",
		Status:    run.StatusRunning,
		StartedAt: time.Now(),
		Labels:    map[string]string{"foo": "bar"},
	}
	require.NoError(t, store.Upsert(ctx, rec))

	loaded, err := store.Load(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, loaded.Status)

	loaded.Labels["foo"] = "mutated"
	reread, err := store.Load(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "bar", reread.Labels["foo"])
}

func TestMemoryStore_Load_NotFound(t *testing.T) {
	store := run.NewMemoryStore()
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestMemoryStore_ListByAgent_OrdersMostRecentFirst(t *testing.T) {
	store := run.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, run.Record{TaskID: "t1", AgentID: "a", StartedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Upsert(ctx, run.Record{TaskID: "t2", AgentID: "a", StartedAt: now}))
	require.NoError(t, store.Upsert(ctx, run.Record{TaskID: "t3", AgentID: "b", StartedAt: now}))

	records, err := store.ListByAgent(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "t2", records[0].TaskID)
	assert.Equal(t, "t1", records[1].TaskID)
}

func TestMemoryStore_Reset(t *testing.T) {
	store := run.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, run.Record{TaskID: "t1"}))
	store.Reset()
	_, err := store.Load(ctx, "t1")
	assert.ErrorIs(t, err, run.ErrNotFound)
}
