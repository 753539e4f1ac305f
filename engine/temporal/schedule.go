package temporal

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/client"

	"github.com/goadesign/agentrun/engine"
)

var _ engine.ScheduleManager = (*Engine)(nil)

// CreateSchedule implements engine.ScheduleManager using Temporal's
// client.ScheduleClient, keyed by spec.ID (the owning trigger's id) so the
// schedule and the Trigger row stay in lockstep per spec.md §4.8.
func (e *Engine) CreateSchedule(ctx context.Context, spec engine.ScheduleSpec) error {
	_, err := e.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     spec.ID,
		Spec:   toTemporalSpec(spec),
		Action: e.scheduleAction(spec),
		Paused: spec.Paused,
	})
	if err != nil {
		if isAlreadyExists(err) {
			return engine.ErrAlreadyRegistered
		}
		return fmt.Errorf("temporal schedule: create %q: %w", spec.ID, err)
	}
	return nil
}

// UpdateSchedule replaces an existing schedule's spec and action in place.
func (e *Engine) UpdateSchedule(ctx context.Context, id string, spec engine.ScheduleSpec) error {
	handle := e.client.ScheduleClient().GetHandle(ctx, id)
	newSpec := toTemporalSpec(spec)
	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := in.Description.Schedule
			sched.Spec = &newSpec
			sched.Action = e.scheduleAction(spec)
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
	if err != nil {
		if isNotFound(err) {
			return engine.ErrScheduleNotFound
		}
		return fmt.Errorf("temporal schedule: update %q: %w", id, err)
	}
	if spec.Paused {
		return e.PauseSchedule(ctx, id)
	}
	return e.ResumeSchedule(ctx, id)
}

// PauseSchedule stops a schedule from firing without deleting it.
func (e *Engine) PauseSchedule(ctx context.Context, id string) error {
	handle := e.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: "paused by agentrun trigger service"}); err != nil {
		if isNotFound(err) {
			return engine.ErrScheduleNotFound
		}
		return fmt.Errorf("temporal schedule: pause %q: %w", id, err)
	}
	return nil
}

// ResumeSchedule resumes a previously paused schedule on its existing cadence.
func (e *Engine) ResumeSchedule(ctx context.Context, id string) error {
	handle := e.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: "resumed by agentrun trigger service"}); err != nil {
		if isNotFound(err) {
			return engine.ErrScheduleNotFound
		}
		return fmt.Errorf("temporal schedule: resume %q: %w", id, err)
	}
	return nil
}

// DeleteSchedule removes a schedule permanently.
func (e *Engine) DeleteSchedule(ctx context.Context, id string) error {
	handle := e.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		if isNotFound(err) {
			return engine.ErrScheduleNotFound
		}
		return fmt.Errorf("temporal schedule: delete %q: %w", id, err)
	}
	return nil
}

func toTemporalSpec(spec engine.ScheduleSpec) client.ScheduleSpec {
	return client.ScheduleSpec{
		CronExpressions: []string{spec.CronExpression},
		TimeZoneName:    spec.Timezone,
	}
}

func (e *Engine) scheduleAction(spec engine.ScheduleSpec) *client.ScheduleWorkflowAction {
	queue := spec.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	return &client.ScheduleWorkflowAction{
		ID:        spec.ID,
		Workflow:  spec.Workflow,
		TaskQueue: queue,
		Args:      []any{spec.Input},
	}
}

// isNotFound/isAlreadyExists match on the gRPC status message rather than a
// sentinel error since client.ScheduleClient wraps a raw gRPC call and the
// Temporal SDK does not export typed errors for these two cases.
func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "NotFound")
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "AlreadyExists")
}
