package engine

import "context"

type (
	// ScheduleManager abstracts the workflow runtime's built-in schedule
	// primitives (Temporal Schedules, or any equivalent) used to fire a
	// workflow repeatedly on a cron cadence. It is a separate interface from
	// Engine because not every Engine implementation needs to support
	// schedules (only the trigger subsystem does), and because the Temporal
	// adapter realizes it through a distinct client (client.ScheduleClient)
	// rather than the worker-facing Engine surface.
	ScheduleManager interface {
		// CreateSchedule registers a new schedule. ID must be unique; callers
		// key it by trigger id so the schedule and the Trigger row stay in
		// lockstep. Creating a schedule that already exists returns
		// ErrAlreadyRegistered.
		CreateSchedule(ctx context.Context, spec ScheduleSpec) error

		// UpdateSchedule replaces the spec of an existing schedule (cron
		// expression, timezone, paused state, or input). Returns
		// ErrScheduleNotFound if id is unknown.
		UpdateSchedule(ctx context.Context, id string, spec ScheduleSpec) error

		// PauseSchedule stops a schedule from firing without deleting it.
		PauseSchedule(ctx context.Context, id string) error

		// ResumeSchedule resumes a previously paused schedule on its existing
		// cadence.
		ResumeSchedule(ctx context.Context, id string) error

		// DeleteSchedule removes a schedule permanently.
		DeleteSchedule(ctx context.Context, id string) error
	}

	// ScheduleSpec describes a cron-driven workflow launch.
	ScheduleSpec struct {
		// ID is the schedule's unique key, conventionally the owning
		// trigger's id.
		ID string
		// CronExpression is a standard 5- or 6-field cron expression.
		CronExpression string
		// Timezone is an IANA timezone name the expression is evaluated in.
		// Empty means UTC.
		Timezone string
		// Workflow is the registered workflow name to start on each fire.
		Workflow string
		// TaskQueue is the task queue the started workflow runs on.
		TaskQueue string
		// Input is passed as the started workflow's input on every fire.
		Input any
		// Paused creates the schedule in a paused state when true.
		Paused bool
	}
)
