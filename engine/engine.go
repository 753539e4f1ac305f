// Package engine defines the workflow engine abstraction that the agent runtime
// and trigger subsystem execute against. It lets generated and hand-written
// workflow code target Temporal, an in-memory adapter for tests, or any other
// durable execution backend without modification.
package engine

import (
	"context"
	"time"

	"github.com/goadesign/agentrun/telemetry"
)

type (
	// Engine abstracts workflow/activity registration and execution so adapters
	// (Temporal, in-memory) can be swapped without touching workflow code.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Must be called during
		// worker initialization, before any StartWorkflow targeting it.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity handler. Must be called during
		// worker initialization.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow starts a new workflow execution and returns a handle for
		// waiting, signaling, or cancelling it. req.ID must be unique.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a workflow entry point. It must be deterministic: given
	// the same inputs and activity results it must produce the same sequence
	// of engine calls on every replay.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to workflow handlers inside the
	// deterministic execution environment. Workflow code must never read the
	// wall clock or a random source directly; it must go through Now() and any
	// engine-provided deterministic helpers instead.
	//
	// A WorkflowContext is bound to a single workflow execution and must not be
	// shared across goroutines or cached outside the workflow function's scope.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules an activity and blocks until it completes,
		// decoding the result into result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking. The
		// returned Future is resolved later via Get.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel for the named signal. Workflow code
		// polls or blocks on it to react to external events deterministically.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current workflow time from a replay-safe source.
		Now() time.Time

		// Sleep blocks the workflow coroutine for d, replay-safe. Returns early
		// with an error if ctx is cancelled.
		Sleep(ctx context.Context, d time.Duration) error
	}

	// Future represents a pending activity result. Get may be called more than
	// once and returns the same value/error each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with default options.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc executes an activity. Unlike workflow code, activities may
	// perform I/O and other side effects.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry and timeout behavior for an activity.
	// Zero-valued fields fall back to the engine's defaults.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest carries the information needed to schedule an activity
	// call from within a workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow execution.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error

		// Query sends a read-only query to the workflow and decodes the reply
		// into result.
		Query(ctx context.Context, queryType string, result any, args ...any) error
	}

	// RetryPolicy defines retry semantics shared by workflows and activities.
	// A zero value means the engine applies its own defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
		MaximumInterval    time.Duration
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		// Receive blocks until a signal is delivered and decodes it into dest.
		Receive(ctx context.Context, dest any) error
		// ReceiveAsync returns false immediately if no signal is pending.
		ReceiveAsync(dest any) bool
	}

	// QueryHandler answers a read-only workflow query given its arguments.
	QueryHandler func(args ...any) (any, error)

	// QueryRegistrar is implemented by WorkflowContext adapters that support
	// registering query handlers from within workflow code.
	QueryRegistrar interface {
		SetQueryHandler(queryType string, handler QueryHandler) error
	}
)
