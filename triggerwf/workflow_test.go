package triggerwf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/engine/inmem"
	"github.com/goadesign/agentrun/trigger"
	"github.com/goadesign/agentrun/trigger/store/memory"
	"github.com/goadesign/agentrun/triggerwf"
)

type fakeTasks struct {
	taskID string
	err    error
	calls  int
}

func (f *fakeTasks) CreateTask(context.Context, trigger.TaskCreationRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.taskID, nil
}

func cronTrigger(id string) trigger.Trigger {
	return trigger.Trigger{
		ID:        id,
		Name:      "nightly-sync",
		AgentID:   "agent-1",
		CreatedBy: "tester",
		Type:      trigger.TypeCron,
		IsActive:  true,
		Cron:      &trigger.CronConfig{CronExpression: "0 0 * * *", Timezone: "UTC"},
	}
}

// newTestEngine wires a fresh in-memory engine with the Trigger Execution
// Workflow registered against a Service backed by a fresh memory store.
func newTestEngine(t *testing.T, tasks *fakeTasks) (*inmem.Engine, *trigger.Service) {
	t.Helper()
	eng := inmem.New(inmem.Options{})
	sm := inmem.NewScheduleManager(eng)
	svc, err := trigger.NewService(trigger.Options{
		Store:     memory.New(),
		Schedules: sm,
		Tasks:     tasks,
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
	})
	require.NoError(t, err)

	wf := triggerwf.NewWorkflow(&triggerwf.Activities{Service: svc})
	require.NoError(t, wf.Register(context.Background(), eng))
	return eng, svc
}

func TestTriggerExecutionWorkflow_ConditionsMetExecutesTrigger(t *testing.T) {
	tasks := &fakeTasks{taskID: "task-1"}
	eng, svc := newTestEngine(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-1")
	tr.Conditions = map[string]any{"field_matches": map[string]any{"event.kind": "push"}}
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        "run-1",
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
		Input: triggerwf.Input{
			TriggerID: "trg-1",
			EventData: map[string]any{"event": map[string]any{"kind": "push"}},
		},
	})
	require.NoError(t, err)

	var result triggerwf.Result
	require.NoError(t, handle.Wait(ctx, &result))

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, 1, tasks.calls)

	triggers, err := svc.ListTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, 0, triggers[0].ConsecutiveFailures)
}

func TestTriggerExecutionWorkflow_ConditionsNotMetSkips(t *testing.T) {
	tasks := &fakeTasks{taskID: "task-1"}
	eng, svc := newTestEngine(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-2")
	tr.Conditions = map[string]any{"field_matches": map[string]any{"event.kind": "push"}}
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        "run-2",
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
		Input: triggerwf.Input{
			TriggerID: "trg-2",
			EventData: map[string]any{"event": map[string]any{"kind": "pull"}},
		},
	})
	require.NoError(t, err)

	var result triggerwf.Result
	require.NoError(t, handle.Wait(ctx, &result))

	assert.Equal(t, "skipped", result.Status)
	assert.Empty(t, result.TaskID)
	assert.Equal(t, 0, tasks.calls)
}

func TestTriggerExecutionWorkflow_TaskCreationFailureRecordsFailedAndPropagates(t *testing.T) {
	tasks := &fakeTasks{err: errors.New("task creation unavailable")}
	eng, svc := newTestEngine(t, tasks)
	ctx := context.Background()

	_, err := svc.CreateTrigger(ctx, cronTrigger("trg-3"))
	require.NoError(t, err)

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        "run-3",
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
		Input:     triggerwf.Input{TriggerID: "trg-3"},
	})
	require.NoError(t, err)

	var result triggerwf.Result
	err = handle.Wait(ctx, &result)
	require.Error(t, err)

	got, err := svc.GetTrigger(ctx, "trg-3")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestTriggerExecutionWorkflow_UnknownTriggerFails(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeTasks{taskID: "task-1"})
	ctx := context.Background()

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        "run-4",
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
		Input:     triggerwf.Input{TriggerID: "does-not-exist"},
	})
	require.NoError(t, err)

	var result triggerwf.Result
	err = handle.Wait(ctx, &result)
	assert.Error(t, err)
}
