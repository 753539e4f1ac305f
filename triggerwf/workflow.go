// Package triggerwf implements the Trigger Execution Workflow (C7): a short,
// single-shot workflow started by a fired schedule or a webhook handler that
// evaluates a trigger's conditions, executes it, and records the outcome.
//
// No direct teacher analogue exists for the workflow body (goa-ai has no
// trigger concept), but it reuses runtime's engine.WorkflowContext/
// ActivityOptions plumbing verbatim in style, per SPEC_FULL.md §4.7.
package triggerwf

import (
	"context"
	"fmt"
	"time"

	"github.com/goadesign/agentrun/engine"
)

// WorkflowName is the contractual Trigger Execution Workflow entry point
// name, spec.md §6.
const WorkflowName = "TriggerExecutionWorkflow"

// TaskQueue is the contractual task queue for the Trigger Execution
// Workflow.
const TaskQueue = "trigger-execution"

// defaultRetryPolicy backs execute_trigger (3 attempts, exponential
// backoff), per spec.md §4.7.
var defaultRetryPolicy = engine.RetryPolicy{
	MaxAttempts:        3,
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    30 * time.Second,
}

// conditionsRetryPolicy backs evaluate_trigger_conditions (2 attempts), per
// spec.md §4.7.
var conditionsRetryPolicy = engine.RetryPolicy{
	MaxAttempts:        2,
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    10 * time.Second,
}

type (
	// Input is the Trigger Execution Workflow's start input.
	Input struct {
		TriggerID string         `json:"trigger_id"`
		EventData map[string]any `json:"event_data,omitempty"`
	}

	// Result is the Trigger Execution Workflow's terminal value, spec.md §6.
	Result struct {
		TriggerID       string         `json:"trigger_id"`
		Status          string         `json:"status"`
		TaskID          string         `json:"task_id,omitempty"`
		ExecutionID     string         `json:"execution_id"`
		ExecutionTimeMs int64          `json:"execution_time_ms"`
		TriggerData     map[string]any `json:"trigger_data,omitempty"`
		ErrorMessage    string         `json:"error_message,omitempty"`
	}
)

// Workflow implements the Trigger Execution Workflow by closing over the
// Activities it dispatches.
type Workflow struct {
	Activities *Activities
}

// NewWorkflow constructs a Workflow bound to the given activity
// implementations.
func NewWorkflow(activities *Activities) *Workflow {
	return &Workflow{Activities: activities}
}

// Register binds the Trigger Execution Workflow and its activities to eng.
func (w *Workflow) Register(ctx context.Context, eng engine.Engine) error {
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: TaskQueue,
		Handler:   w.Execute,
	}); err != nil {
		return fmt.Errorf("register workflow %q: %w", WorkflowName, err)
	}
	if w.Activities != nil {
		return w.Activities.Register(ctx, eng)
	}
	return nil
}

// Execute is the TriggerExecutionWorkflow entry point, matching
// engine.WorkflowFunc's signature.
func (w *Workflow) Execute(wfCtx engine.WorkflowContext, input any) (any, error) {
	in, err := decodeInto[Input](input)
	if err != nil {
		return nil, err
	}
	ctx := wfCtx.Context()
	executionID := wfCtx.WorkflowID()

	var conditionsOut EvaluateConditionsOutput
	if err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name:        ActivityEvaluateTriggerConditions,
		Input:       EvaluateConditionsInput{TriggerID: in.TriggerID, EventData: in.EventData},
		RetryPolicy: conditionsRetryPolicy,
	}, &conditionsOut); err != nil {
		return w.recordAndFail(wfCtx, in, executionID, err)
	}

	if !conditionsOut.ConditionsMet {
		var recOut RecordExecutionOutput
		_ = wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
			Name: ActivityRecordTriggerExecution,
			Input: RecordExecutionInput{
				TriggerID: in.TriggerID,
				Status:    "skipped",
				Reason:    "conditions_not_met",
				EventData: in.EventData,
			},
			RetryPolicy: defaultRetryPolicy,
		}, &recOut)
		return Result{
			TriggerID:   in.TriggerID,
			Status:      "skipped",
			ExecutionID: executionID,
			TriggerData: in.EventData,
		}, nil
	}

	var execOut ExecuteTriggerOutput
	err = wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name:        ActivityExecuteTrigger,
		Input:       ExecuteTriggerInput{TriggerID: in.TriggerID, EventData: in.EventData},
		RetryPolicy: defaultRetryPolicy,
	}, &execOut)
	if err != nil {
		// ExecuteTrigger already records a failed execution when task
		// creation fails, so no second record is written here; errors raised
		// before that point (unknown trigger, failed rate check) are
		// propagated without a record.
		return Result{
			TriggerID:    in.TriggerID,
			Status:       "failed",
			ExecutionID:  executionID,
			TriggerData:  in.EventData,
			ErrorMessage: err.Error(),
		}, err
	}

	return Result{
		TriggerID:       in.TriggerID,
		Status:          execOut.Status,
		TaskID:          execOut.TaskID,
		ExecutionID:     executionID,
		ExecutionTimeMs: execOut.ExecutionTimeMs,
		TriggerData:     in.EventData,
		ErrorMessage:    execOut.Reason,
	}, nil
}

// recordAndFail records a failed execution (best-effort) and returns the
// workflow error, per spec.md §4.7 step 4 ("on unexpected error, record
// failed and propagate").
func (w *Workflow) recordAndFail(wfCtx engine.WorkflowContext, in Input, executionID string, cause error) (any, error) {
	ctx := wfCtx.Context()
	var recOut RecordExecutionOutput
	_ = wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name: ActivityRecordTriggerExecution,
		Input: RecordExecutionInput{
			TriggerID: in.TriggerID,
			Status:    "failed",
			Reason:    cause.Error(),
			EventData: in.EventData,
		},
		RetryPolicy: defaultRetryPolicy,
	}, &recOut)
	return Result{
		TriggerID:    in.TriggerID,
		Status:       "failed",
		ExecutionID:  executionID,
		TriggerData:  in.EventData,
		ErrorMessage: cause.Error(),
	}, cause
}
