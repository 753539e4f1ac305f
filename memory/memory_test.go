package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/memory"
)

func TestInMemoryStore_AppendAndLoad(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()

	event := memory.Event{Type: memory.EventToolCall, Timestamp: time.Now(), Data: map[string]any{"tool": "search"}}
	require.NoError(t, store.AppendEvents(ctx, "agent-1", "task-1", event))

	snap, err := store.LoadRun(ctx, "agent-1", "task-1")
	require.NoError(t, err)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, memory.EventToolCall, snap.Events[0].Type)
}

func TestInMemoryStore_LoadRun_EmptyForUnknownTask(t *testing.T) {
	store := memory.NewInMemoryStore()
	snap, err := store.LoadRun(context.Background(), "agent-1", "missing")
	require.NoError(t, err)
	assert.Empty(t, snap.Events)
}

func TestInMemoryStore_LoadRun_IsolatesCallerMutation(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.AppendEvents(ctx, "agent-1", "task-1", memory.Event{Type: memory.EventToolCall}))

	snap, err := store.LoadRun(ctx, "agent-1", "task-1")
	require.NoError(t, err)
	snap.Events[0].Type = memory.EventToolResult

	reread, err := store.LoadRun(ctx, "agent-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, memory.EventToolCall, reread.Events[0].Type)
}

func TestInMemoryStore_AppendEvents_Accumulates(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.AppendEvents(ctx, "agent-1", "task-1",
		memory.Event{Type: memory.EventUserMessage},
		memory.Event{Type: memory.EventAssistantMessage},
	))
	require.NoError(t, store.AppendEvents(ctx, "agent-1", "task-1", memory.Event{Type: memory.EventToolCall}))

	snap, err := store.LoadRun(ctx, "agent-1", "task-1")
	require.NoError(t, err)
	require.Len(t, snap.Events, 3)
	assert.Equal(t, memory.EventToolCall, snap.Events[2].Type)
}
