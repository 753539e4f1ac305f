package trigger

import (
	"errors"
	"fmt"
)

// Sentinel errors, spec.md §7: TriggerNotFound and TriggerValidationError are
// non-retryable and fail the Trigger Execution Workflow.
var (
	// ErrNotFound is returned when a Trigger id (or webhook id) has no
	// matching row.
	ErrNotFound = errors.New("trigger: not found")

	// ErrValidation wraps a create/update validation failure.
	ErrValidation = errors.New("trigger: validation failed")

	// ErrRateLimited names the max_executions_per_hour condition. ExecuteTrigger
	// does not return it: a trigger over its hourly cap yields an
	// ExecutionSkipped result with a nil error.
	ErrRateLimited = errors.New("trigger: rate limited")

	// ErrInactive names the disabled-trigger condition. ExecuteTrigger does
	// not return it: a disabled trigger yields an ExecutionSkipped result
	// with a nil error.
	ErrInactive = errors.New("trigger: inactive")
)

// ValidationError carries the specific reason a Trigger failed validation,
// preserving errors.Is(err, ErrValidation) via Unwrap.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("trigger: validation failed: %s", e.Reason) }
func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
