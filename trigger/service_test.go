package trigger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/engine/inmem"
	"github.com/goadesign/agentrun/trigger"
	"github.com/goadesign/agentrun/trigger/store/memory"
)

// fakeTasks records every CreateTask call and returns a fixed task id (or a
// configured error), letting tests assert on exactly what a fired trigger
// handed to the task creator.
type fakeTasks struct {
	mu       sync.Mutex
	taskID   string
	err      error
	requests []trigger.TaskCreationRequest
}

func (f *fakeTasks) CreateTask(_ context.Context, req trigger.TaskCreationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.taskID, nil
}

func (f *fakeTasks) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func cronTrigger(id string) trigger.Trigger {
	return trigger.Trigger{
		ID:        id,
		Name:      "daily-report",
		AgentID:   "agent-1",
		CreatedBy: "tester",
		Type:      trigger.TypeCron,
		IsActive:  true,
		Cron:      &trigger.CronConfig{CronExpression: "0 9 * * *", Timezone: "UTC"},
	}
}

func newTestService(t *testing.T, tasks *fakeTasks) (*trigger.Service, *inmem.ScheduleManager) {
	t.Helper()
	eng := inmem.New(inmem.Options{})
	sm := inmem.NewScheduleManager(eng)
	svc, err := trigger.NewService(trigger.Options{
		Store:     memory.New(),
		Schedules: sm,
		Tasks:     tasks,
		Workflow:  "TriggerExecutionWorkflow",
		TaskQueue: "trigger-execution",
	})
	require.NoError(t, err)
	return svc, sm
}

func TestService_CreateTrigger_CreatesSchedule(t *testing.T) {
	svc, sm := newTestService(t, &fakeTasks{taskID: "task-1"})
	ctx := context.Background()

	created, err := svc.CreateTrigger(ctx, cronTrigger("trg-1"))
	require.NoError(t, err)
	assert.Equal(t, "trg-1", created.ID)

	spec, ok := sm.Get("trg-1")
	require.True(t, ok)
	assert.Equal(t, "0 9 * * *", spec.CronExpression)
	assert.False(t, spec.Paused)
}

func TestService_CreateTrigger_RejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t, &fakeTasks{})
	_, err := svc.CreateTrigger(context.Background(), trigger.Trigger{Type: trigger.TypeCron})
	require.Error(t, err)
	assert.ErrorIs(t, err, trigger.ErrValidation)
}

func TestService_DisableEnableTrigger_TogglesSchedulePause(t *testing.T) {
	svc, sm := newTestService(t, &fakeTasks{taskID: "task-1"})
	ctx := context.Background()
	_, err := svc.CreateTrigger(ctx, cronTrigger("trg-2"))
	require.NoError(t, err)

	require.NoError(t, svc.DisableTrigger(ctx, "trg-2"))
	spec, ok := sm.Get("trg-2")
	require.True(t, ok)
	assert.True(t, spec.Paused)

	require.NoError(t, svc.EnableTrigger(ctx, "trg-2"))
	spec, ok = sm.Get("trg-2")
	require.True(t, ok)
	assert.False(t, spec.Paused)
}

// S6: conditions met produces a successful execution and a created task.
func TestService_ExecuteTrigger_ConditionsMetCreatesTask(t *testing.T) {
	tasks := &fakeTasks{taskID: "task-42"}
	svc, _ := newTestService(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-3")
	tr.Conditions = map[string]any{"field_matches": map[string]any{"event.kind": "push"}}
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	event := map[string]any{"event": map[string]any{"kind": "push"}}

	met, err := svc.EvaluateConditions(ctx, "trg-3", event)
	require.NoError(t, err)
	require.True(t, met)

	res, err := svc.ExecuteTrigger(ctx, "trg-3", event)
	require.NoError(t, err)
	assert.Equal(t, trigger.ExecutionSuccess, res.Status)
	assert.Equal(t, "task-42", res.TaskID)
	assert.Equal(t, 1, tasks.calls())
}

// S7: conditions not met never reaches ExecuteTrigger, so no task is
// created.
func TestService_EvaluateConditions_ConditionsNotMetSkipsExecution(t *testing.T) {
	tasks := &fakeTasks{taskID: "task-1"}
	svc, _ := newTestService(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-4")
	tr.Conditions = map[string]any{"field_matches": map[string]any{"event.kind": "push"}}
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	met, err := svc.EvaluateConditions(ctx, "trg-4", map[string]any{"event": map[string]any{"kind": "pull"}})
	require.NoError(t, err)
	assert.False(t, met)
	assert.Equal(t, 0, tasks.calls())
}

func TestService_ExecuteTrigger_RateLimited(t *testing.T) {
	tasks := &fakeTasks{taskID: "task-1"}
	svc, _ := newTestService(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-5")
	tr.MaxExecutionsPerHour = 1
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	res1, err := svc.ExecuteTrigger(ctx, "trg-5", nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.ExecutionSuccess, res1.Status)

	res2, err := svc.ExecuteTrigger(ctx, "trg-5", nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.ExecutionSkipped, res2.Status)
	assert.Equal(t, 1, tasks.calls())
}

// S8 / invariant 7: failure_threshold consecutive failures auto-disables the
// trigger and pauses its schedule.
func TestService_RecordExecution_AutoDisablesAfterFailureThreshold(t *testing.T) {
	tasks := &fakeTasks{err: assertableErr{"model unavailable"}}
	svc, sm := newTestService(t, tasks)
	ctx := context.Background()

	tr := cronTrigger("trg-6")
	tr.FailureThreshold = 2
	_, err := svc.CreateTrigger(ctx, tr)
	require.NoError(t, err)

	_, err = svc.ExecuteTrigger(ctx, "trg-6", nil)
	require.Error(t, err)
	got, err := svc.GetTrigger(ctx, "trg-6")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.True(t, got.IsActive)

	_, err = svc.ExecuteTrigger(ctx, "trg-6", nil)
	require.Error(t, err)
	got, err = svc.GetTrigger(ctx, "trg-6")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ConsecutiveFailures)
	assert.False(t, got.IsActive)

	spec, ok := sm.Get("trg-6")
	require.True(t, ok)
	assert.True(t, spec.Paused)
}

func TestService_DeleteTrigger_RemovesScheduleAndExecutions(t *testing.T) {
	svc, sm := newTestService(t, &fakeTasks{taskID: "task-1"})
	ctx := context.Background()
	_, err := svc.CreateTrigger(ctx, cronTrigger("trg-7"))
	require.NoError(t, err)
	_, err = svc.ExecuteTrigger(ctx, "trg-7", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTrigger(ctx, "trg-7"))

	_, err = svc.GetTrigger(ctx, "trg-7")
	assert.ErrorIs(t, err, trigger.ErrNotFound)
	_, ok := sm.Get("trg-7")
	assert.False(t, ok)
}

// assertableErr is a trivial error value usable as a fakeTasks.err fixture.
type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }

var _ engine.ScheduleManager = (*inmem.ScheduleManager)(nil)
