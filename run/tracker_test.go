package run_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/run"
)

func TestTrackingPublisher_ProjectsWorkflowStatus(t *testing.T) {
	store := run.NewMemoryStore()
	var forwarded []hooks.Event
	next := hooks.PublisherFunc(func(events []hooks.Event) { forwarded = append(forwarded, events...) })

	tp := &run.TrackingPublisher{Store: store, Next: next}

	start := hooks.New("e1", hooks.WorkflowStarted, time.Now(), "task-1", "agent-1", "exec-1", nil)
	tp.Publish([]hooks.Event{start})

	require.Len(t, forwarded, 1, "events must still reach the wrapped publisher")

	rec, err := store.Load(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, rec.Status)
	assert.Equal(t, "agent-1", rec.AgentID)

	done := hooks.New("e2", hooks.WorkflowCompleted, time.Now(), "task-1", "agent-1", "exec-1", nil)
	tp.Publish([]hooks.Event{done})

	rec, err = store.Load(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, rec.Status)
}

func TestTrackingPublisher_IgnoresNonLifecycleEvents(t *testing.T) {
	store := run.NewMemoryStore()
	tp := &run.TrackingPublisher{Store: store}

	tp.Publish([]hooks.Event{hooks.New("e1", hooks.ToolCallStarted, time.Now(), "task-1", "agent-1", "exec-1", nil)})

	_, err := store.Load(context.Background(), "task-1")
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestTrackingPublisher_NilStoreStillForwards(t *testing.T) {
	var forwarded []hooks.Event
	next := hooks.PublisherFunc(func(events []hooks.Event) { forwarded = append(forwarded, events...) })
	tp := &run.TrackingPublisher{Next: next}

	tp.Publish([]hooks.Event{hooks.New("e1", hooks.WorkflowStarted, time.Now(), "task-1", "agent-1", "exec-1", nil)})

	assert.Len(t, forwarded, 1)
}
