package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goadesign/agentrun/catalogue"
	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/telemetry"
)

type (
	// TaskCreator is the "task-creation collaborator" of spec.md §4.7: it
	// starts a new Agent Execution Workflow instance and returns its task id.
	TaskCreator interface {
		CreateTask(ctx context.Context, req TaskCreationRequest) (taskID string, err error)
	}

	// TaskCreationRequest carries the merged parameters §4.7 step 2
	// describes: the Trigger's stored parameters, basic trigger metadata,
	// the fired event data, and (optionally) LLM-extracted parameters.
	TaskCreationRequest struct {
		AgentID        string
		TaskParameters map[string]any
		Metadata       map[string]any
	}

	// Service implements the Trigger Service & Schedule Manager (C8):
	// CRUD over Trigger rows kept in lockstep with the workflow runtime's
	// schedule primitives, plus end-to-end trigger firing.
	//
	// Grounded on the teacher's registry.Service (CRUD-over-store shape,
	// ServiceOptions construction with required-dependency checks).
	Service struct {
		store       Store
		schedules   engine.ScheduleManager
		catalogue   catalogue.Client
		tasks       TaskCreator
		evaluator   ConditionEvaluator
		logger      telemetry.Logger
		workflow    string
		taskQueue   string
		now         func() time.Time
		newID       func() string
	}

	// Options configures a Service.
	Options struct {
		Store     Store
		Schedules engine.ScheduleManager
		Catalogue catalogue.Client
		Tasks     TaskCreator
		Evaluator ConditionEvaluator
		Logger    telemetry.Logger
		// Workflow/TaskQueue name the Trigger Execution Workflow a cron
		// schedule fires on. NewService applies no default: callers pass
		// triggerwf's contractual names, which this package cannot import
		// without a cycle.
		Workflow  string
		TaskQueue string
	}

	// ExecuteResult is the outcome of Service.ExecuteTrigger.
	ExecuteResult struct {
		Status          ExecutionStatus
		TaskID          string
		Reason          string
		ExecutionTimeMs int64
	}
)

// NewService constructs a Service. Store is required; Schedules/Tasks may be
// nil for Services that only manage webhook triggers or run in a read-only
// capacity (schedule operations then become no-ops, logged as warnings).
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("trigger: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = NewEvaluator(nil, DefaultConditionPolicy)
	}
	return &Service{
		store:     opts.Store,
		schedules: opts.Schedules,
		catalogue: opts.Catalogue,
		tasks:     opts.Tasks,
		evaluator: evaluator,
		logger:    logger,
		workflow:  opts.Workflow,
		taskQueue: opts.TaskQueue,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}, nil
}

// CreateTrigger validates data, persists it, and (for cron triggers) creates
// a schedule. Schedule-creation failure is logged but does not roll back the
// Trigger row, per §4.8: "the trigger can be rescheduled by the next
// update/enable."
func (s *Service) CreateTrigger(ctx context.Context, t Trigger) (*Trigger, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if err := validate(ctx, &t, s.catalogue); err != nil {
		return nil, err
	}
	if err := s.store.SaveTrigger(ctx, &t); err != nil {
		return nil, fmt.Errorf("trigger: save: %w", err)
	}
	if t.Type == TypeCron && t.IsActive {
		if err := s.createSchedule(ctx, &t); err != nil {
			s.logger.Warn(ctx, "trigger: schedule creation failed", "trigger_id", t.ID, "error", err.Error())
		}
	}
	return &t, nil
}

func (s *Service) createSchedule(ctx context.Context, t *Trigger) error {
	if s.schedules == nil {
		return fmt.Errorf("no schedule manager configured")
	}
	return s.schedules.CreateSchedule(ctx, engine.ScheduleSpec{
		ID:             t.ID,
		CronExpression: t.Cron.CronExpression,
		Timezone:       t.Cron.Timezone,
		Workflow:       s.workflow,
		TaskQueue:      s.taskQueue,
		Input:          map[string]any{"trigger_id": t.ID},
		Paused:         !t.IsActive,
	})
}

// UpdateTrigger re-validates and persists the update, syncing the schedule
// if the cron expression or active flag changed.
func (s *Service) UpdateTrigger(ctx context.Context, id string, u Update) (*Trigger, error) {
	t, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return nil, err
	}
	scheduleChanged := u.Apply(t)
	if err := validate(ctx, t, s.catalogue); err != nil {
		return nil, err
	}
	if err := s.store.SaveTrigger(ctx, t); err != nil {
		return nil, fmt.Errorf("trigger: save: %w", err)
	}
	if scheduleChanged && t.Type == TypeCron {
		if err := s.syncSchedule(ctx, t); err != nil {
			s.logger.Warn(ctx, "trigger: schedule sync failed", "trigger_id", t.ID, "error", err.Error())
		}
	}
	return t, nil
}

// syncSchedule reconciles the schedule with t's current cron config and
// active flag, creating it if it does not exist yet.
func (s *Service) syncSchedule(ctx context.Context, t *Trigger) error {
	if s.schedules == nil {
		return fmt.Errorf("no schedule manager configured")
	}
	spec := engine.ScheduleSpec{
		ID:             t.ID,
		CronExpression: t.Cron.CronExpression,
		Timezone:       t.Cron.Timezone,
		Workflow:       s.workflow,
		TaskQueue:      s.taskQueue,
		Input:          map[string]any{"trigger_id": t.ID},
		Paused:         !t.IsActive,
	}
	if err := s.schedules.UpdateSchedule(ctx, t.ID, spec); err != nil {
		return s.schedules.CreateSchedule(ctx, spec)
	}
	if t.IsActive {
		return s.schedules.ResumeSchedule(ctx, t.ID)
	}
	return s.schedules.PauseSchedule(ctx, t.ID)
}

// EnableTrigger flips is_active on and resumes the schedule.
func (s *Service) EnableTrigger(ctx context.Context, id string) error {
	active := true
	_, err := s.UpdateTrigger(ctx, id, Update{IsActive: &active})
	return err
}

// DisableTrigger flips is_active off and pauses the schedule.
func (s *Service) DisableTrigger(ctx context.Context, id string) error {
	active := false
	_, err := s.UpdateTrigger(ctx, id, Update{IsActive: &active})
	return err
}

// DeleteTrigger deletes the schedule, then the Trigger row, then cascade-
// deletes its executions.
func (s *Service) DeleteTrigger(ctx context.Context, id string) error {
	t, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return err
	}
	if t.Type == TypeCron && s.schedules != nil {
		if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
			s.logger.Warn(ctx, "trigger: schedule deletion failed", "trigger_id", id, "error", err.Error())
		}
	}
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteExecutions(ctx, id)
}

// GetTrigger looks up a Trigger by id.
func (s *Service) GetTrigger(ctx context.Context, id string) (*Trigger, error) {
	return s.store.GetTrigger(ctx, id)
}

// GetTriggerByWebhookID looks up a Trigger by its webhook id.
func (s *Service) GetTriggerByWebhookID(ctx context.Context, webhookID string) (*Trigger, error) {
	return s.store.GetTriggerByWebhookID(ctx, webhookID)
}

// ListTriggers returns every persisted Trigger.
func (s *Service) ListTriggers(ctx context.Context) ([]*Trigger, error) {
	return s.store.ListTriggers(ctx)
}

// EvaluateConditions judges whether triggerID's conditions are met against
// eventData (spec.md §4.7 step 1).
func (s *Service) EvaluateConditions(ctx context.Context, triggerID string, eventData map[string]any) (bool, error) {
	t, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return false, err
	}
	return s.evaluator.Evaluate(ctx, t, eventData)
}

// ExecuteTrigger implements the core of spec.md §4.7 step 2: loads the
// Trigger, checks is_active and the per-hour rate limit, builds merged task
// parameters, creates the task, and records the execution. Conditions are
// assumed already evaluated by the caller (EvaluateConditions); this method
// does not re-check them.
func (s *Service) ExecuteTrigger(ctx context.Context, triggerID string, eventData map[string]any) (ExecuteResult, error) {
	start := s.now()
	t, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return ExecuteResult{}, err
	}

	if !t.IsActive {
		res := ExecuteResult{Status: ExecutionSkipped, Reason: "trigger is inactive", ExecutionTimeMs: s.elapsedMs(start)}
		_ = s.RecordExecution(ctx, triggerID, res, eventData)
		return res, nil
	}

	if t.MaxExecutionsPerHour > 0 {
		count, err := s.store.CountExecutionsSince(ctx, triggerID, s.now().Add(-time.Hour))
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("trigger: rate check: %w", err)
		}
		if count >= t.MaxExecutionsPerHour {
			res := ExecuteResult{Status: ExecutionSkipped, Reason: "max_executions_per_hour exceeded", ExecutionTimeMs: s.elapsedMs(start)}
			_ = s.RecordExecution(ctx, triggerID, res, eventData)
			return res, nil
		}
	}

	taskID, err := s.CreateTaskFromTrigger(ctx, t, eventData)
	if err != nil {
		res := ExecuteResult{Status: ExecutionFailed, Reason: err.Error(), ExecutionTimeMs: s.elapsedMs(start)}
		_ = s.RecordExecution(ctx, triggerID, res, eventData)
		return res, err
	}

	res := ExecuteResult{Status: ExecutionSuccess, TaskID: taskID, ExecutionTimeMs: s.elapsedMs(start)}
	if err := s.RecordExecution(ctx, triggerID, res, eventData); err != nil {
		return res, err
	}
	return res, nil
}

// CreateTaskFromTrigger builds the merged task parameters (the Trigger's
// stored parameters, basic metadata, and the fired event data) and invokes
// the TaskCreator collaborator. Exposed separately so it maps 1:1 onto the
// create_task_from_trigger_activity contract (spec.md §6).
func (s *Service) CreateTaskFromTrigger(ctx context.Context, t *Trigger, eventData map[string]any) (string, error) {
	if s.tasks == nil {
		return "", fmt.Errorf("trigger: no task creator configured")
	}
	params := make(map[string]any, len(t.TaskParameters)+1)
	for k, v := range t.TaskParameters {
		params[k] = v
	}
	params["trigger_event"] = eventData
	return s.tasks.CreateTask(ctx, TaskCreationRequest{
		AgentID:        t.AgentID,
		TaskParameters: params,
		Metadata: map[string]any{
			"trigger_id":   t.ID,
			"trigger_name": t.Name,
		},
	})
}

// RecordExecution appends a TriggerExecution, updates last_execution_at, and
// applies the consecutive-failure auto-disable policy of §4.8/invariant 7.
func (s *Service) RecordExecution(ctx context.Context, triggerID string, res ExecuteResult, eventData map[string]any) error {
	now := s.now()
	exec := &Execution{
		ID:              s.newID(),
		TriggerID:       triggerID,
		ExecutedAt:      now,
		Status:          res.Status,
		TaskID:          res.TaskID,
		ExecutionTimeMs: res.ExecutionTimeMs,
		ErrorMessage:    res.Reason,
		TriggerData:     eventData,
	}
	if err := s.store.AppendExecution(ctx, exec); err != nil {
		return fmt.Errorf("trigger: record execution: %w", err)
	}

	t, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return err
	}
	t.LastExecutionAt = &now
	if res.Status == ExecutionFailed {
		t.ConsecutiveFailures++
	} else {
		t.ConsecutiveFailures = 0
	}
	if err := s.store.SaveTrigger(ctx, t); err != nil {
		return fmt.Errorf("trigger: update last_execution_at: %w", err)
	}

	// Invariant 7: consecutive_failures >= failure_threshold => is_active =
	// false immediately after this commit.
	if t.FailureThreshold > 0 && t.ConsecutiveFailures >= t.FailureThreshold && t.IsActive {
		s.logger.Warn(ctx, "trigger: auto-disabling after repeated failures",
			"trigger_id", triggerID, "consecutive_failures", t.ConsecutiveFailures, "failure_threshold", t.FailureThreshold)
		if err := s.DisableTrigger(ctx, triggerID); err != nil {
			s.logger.Error(ctx, "trigger: auto-disable failed", "trigger_id", triggerID, "error", err.Error())
			return err
		}
	}
	return nil
}

func (s *Service) elapsedMs(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}
