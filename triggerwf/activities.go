package triggerwf

import (
	"context"
	"fmt"

	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/trigger"
)

// Activity names, contractual per spec.md §6.
const (
	ActivityExecuteTrigger            = "execute_trigger_activity"
	ActivityEvaluateTriggerConditions = "evaluate_trigger_conditions_activity"
	ActivityCreateTaskFromTrigger     = "create_task_from_trigger_activity"
	ActivityRecordTriggerExecution    = "record_trigger_execution_activity"
)

type (
	// Activities binds the Trigger Execution Workflow's activity contracts
	// to a trigger.Service.
	Activities struct {
		Service *trigger.Service
	}

	// EvaluateConditionsInput is the input to ActivityEvaluateTriggerConditions.
	EvaluateConditionsInput struct {
		TriggerID string         `json:"trigger_id"`
		EventData map[string]any `json:"event_data,omitempty"`
	}

	// EvaluateConditionsOutput is the output of
	// ActivityEvaluateTriggerConditions.
	EvaluateConditionsOutput struct {
		ConditionsMet bool `json:"conditions_met"`
	}

	// ExecuteTriggerInput is the input to ActivityExecuteTrigger.
	ExecuteTriggerInput struct {
		TriggerID string         `json:"trigger_id"`
		EventData map[string]any `json:"event_data,omitempty"`
	}

	// ExecuteTriggerOutput is the output of ActivityExecuteTrigger.
	ExecuteTriggerOutput struct {
		Status          string `json:"status"`
		TaskID          string `json:"task_id,omitempty"`
		Reason          string `json:"reason,omitempty"`
		ExecutionTimeMs int64  `json:"execution_time_ms"`
	}

	// CreateTaskFromTriggerInput is the input to
	// ActivityCreateTaskFromTrigger.
	CreateTaskFromTriggerInput struct {
		TriggerID string         `json:"trigger_id"`
		EventData map[string]any `json:"event_data,omitempty"`
	}

	// CreateTaskFromTriggerOutput is the output of
	// ActivityCreateTaskFromTrigger.
	CreateTaskFromTriggerOutput struct {
		TaskID string `json:"task_id"`
	}

	// RecordExecutionInput is the input to ActivityRecordTriggerExecution.
	RecordExecutionInput struct {
		TriggerID string         `json:"trigger_id"`
		Status    string         `json:"status"`
		TaskID    string         `json:"task_id,omitempty"`
		Reason    string         `json:"reason,omitempty"`
		EventData map[string]any `json:"event_data,omitempty"`
	}

	// RecordExecutionOutput acknowledges the recorded execution.
	RecordExecutionOutput struct {
		Recorded bool `json:"recorded"`
	}
)

// EvaluateTriggerConditionsActivity judges whether triggerID's conditions
// are met, spec.md §4.7 step 1.
func (a *Activities) EvaluateTriggerConditionsActivity(ctx context.Context, in EvaluateConditionsInput) (EvaluateConditionsOutput, error) {
	met, err := a.Service.EvaluateConditions(ctx, in.TriggerID, in.EventData)
	if err != nil {
		return EvaluateConditionsOutput{}, err
	}
	return EvaluateConditionsOutput{ConditionsMet: met}, nil
}

// ExecuteTriggerActivity runs the rate-limit check, task creation, and
// execution recording described by spec.md §4.7 step 2.
func (a *Activities) ExecuteTriggerActivity(ctx context.Context, in ExecuteTriggerInput) (ExecuteTriggerOutput, error) {
	res, err := a.Service.ExecuteTrigger(ctx, in.TriggerID, in.EventData)
	if err != nil {
		return ExecuteTriggerOutput{}, err
	}
	return ExecuteTriggerOutput{
		Status:          string(res.Status),
		TaskID:          res.TaskID,
		Reason:          res.Reason,
		ExecutionTimeMs: res.ExecutionTimeMs,
	}, nil
}

// CreateTaskFromTriggerActivity creates a task directly, without the
// rate-limit check or execution bookkeeping ExecuteTriggerActivity performs
// — exposed for callers (e.g. a webhook handler) that want only task
// creation.
func (a *Activities) CreateTaskFromTriggerActivity(ctx context.Context, in CreateTaskFromTriggerInput) (CreateTaskFromTriggerOutput, error) {
	t, err := a.Service.GetTrigger(ctx, in.TriggerID)
	if err != nil {
		return CreateTaskFromTriggerOutput{}, err
	}
	taskID, err := a.Service.CreateTaskFromTrigger(ctx, t, in.EventData)
	if err != nil {
		return CreateTaskFromTriggerOutput{}, err
	}
	return CreateTaskFromTriggerOutput{TaskID: taskID}, nil
}

// RecordTriggerExecutionActivity appends a TriggerExecution and applies the
// consecutive-failure auto-disable policy.
func (a *Activities) RecordTriggerExecutionActivity(ctx context.Context, in RecordExecutionInput) (RecordExecutionOutput, error) {
	err := a.Service.RecordExecution(ctx, in.TriggerID, trigger.ExecuteResult{
		Status: trigger.ExecutionStatus(in.Status),
		TaskID: in.TaskID,
		Reason: in.Reason,
	}, in.EventData)
	if err != nil {
		return RecordExecutionOutput{}, err
	}
	return RecordExecutionOutput{Recorded: true}, nil
}

// Register binds every activity method to eng under its contractual name.
func (a *Activities) Register(ctx context.Context, eng engine.Engine) error {
	type entry struct {
		name    string
		handler engine.ActivityFunc
	}
	entries := []entry{
		{ActivityEvaluateTriggerConditions, activityFunc(a.EvaluateTriggerConditionsActivity)},
		{ActivityExecuteTrigger, activityFunc(a.ExecuteTriggerActivity)},
		{ActivityCreateTaskFromTrigger, activityFunc(a.CreateTaskFromTriggerActivity)},
		{ActivityRecordTriggerExecution, activityFunc(a.RecordTriggerExecutionActivity)},
	}
	for _, e := range entries {
		if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{Name: e.name, Handler: e.handler}); err != nil {
			return fmt.Errorf("register activity %q: %w", e.name, err)
		}
	}
	return nil
}

func activityFunc[In, Out any](fn func(context.Context, In) (Out, error)) engine.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, err := decodeInto[In](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}
