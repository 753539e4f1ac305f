package engine

import "errors"

// Sentinel errors returned by WorkflowHandle operations, normalized across
// backends so callers never need to type-switch on an adapter's native error.
var (
	// ErrWorkflowNotFound is returned when an operation targets a workflow ID
	// the engine has no record of.
	ErrWorkflowNotFound = errors.New("engine: workflow not found")

	// ErrWorkflowCompleted is returned when a signal or cancellation targets a
	// workflow that has already finished.
	ErrWorkflowCompleted = errors.New("engine: workflow already completed")

	// ErrAlreadyRegistered is returned by RegisterWorkflow when the given name
	// is already bound to a handler, and by ScheduleManager.CreateSchedule when
	// the schedule id already exists. RegisterActivity replaces an existing
	// registration instead.
	ErrAlreadyRegistered = errors.New("engine: name already registered")

	// ErrScheduleNotFound is returned by ScheduleManager operations that
	// target an unknown schedule id.
	ErrScheduleNotFound = errors.New("engine: schedule not found")
)
