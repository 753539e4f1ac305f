package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/goadesign/agentrun/catalogue"
	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/mcptool"
	"github.com/goadesign/agentrun/memory"
	"github.com/goadesign/agentrun/message"
	"github.com/goadesign/agentrun/model"
)

// Activity names, contractual per spec.md §6 (used by both workflow and
// worker registration).
const (
	ActivityBuildAgentConfig       = "build_agent_config_activity"
	ActivityDiscoverAvailableTools = "discover_available_tools_activity"
	ActivityCallLLM                = "call_llm_activity"
	ActivityExecuteMCPTool         = "execute_mcp_tool_activity"
	ActivityCheckTaskCompletion    = "check_task_completion_activity"
	ActivityEvaluateGoalProgress   = "evaluate_goal_progress_activity"
	ActivityPublishWorkflowEvents  = "publish_workflow_events_activity"
	// ActivityPersistTranscript is not named in spec.md §6 (the core
	// contract is silent on transcript persistence beyond the workflow's
	// own event history); it exists to exercise the memory package's
	// transcript store and, like publish_workflow_events, must never block
	// or fail the workflow on a persistence error.
	ActivityPersistTranscript = "persist_transcript_activity"
)

// defaultRetryPolicy is the "up to 3 attempts, 1s -> 30s backoff" policy
// spec.md §4.2 assigns to most activities.
var defaultRetryPolicy = engine.RetryPolicy{
	MaxAttempts:        3,
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    30 * time.Second,
}

// publishRetryPolicy is the "single attempt, short timeout" policy for
// publish_workflow_events (fire-and-forget, must never block the workflow).
var publishRetryPolicy = engine.RetryPolicy{MaxAttempts: 1}

type (
	// Activities implements the activity layer (C2): the only place non-
	// deterministic I/O occurs. Each method is registered as a named
	// activity and invoked by the workflow through engine.WorkflowContext.
	Activities struct {
		Catalogue catalogue.Client
		Model     model.Client
		Tools     mcptool.Caller
		Publisher hooks.Publisher
		// Evaluator performs evaluate_goal_progress. If nil,
		// CheckTaskCompletionActivity's iteration-count fallback is used
		// instead, per spec.md §4.2.
		Evaluator GoalEvaluator
		// Memory persists the conversation transcript alongside the
		// workflow's own event history (SPEC_FULL.md's memory/ package). A
		// nil Memory disables persistence entirely; PersistTranscriptActivity
		// is then a no-op so the loop never depends on it being configured.
		Memory memory.Store
	}

	// GoalEvaluator judges whether the goal has been achieved given the
	// conversation so far.
	GoalEvaluator interface {
		Evaluate(ctx context.Context, goal AgentGoal, messages []message.Message, iteration int) (achieved bool, finalResponse string, err error)
	}

	// BuildAgentConfigInput is the input to ActivityBuildAgentConfig.
	BuildAgentConfigInput struct {
		AgentID     string         `json:"agent_id"`
		UserContext map[string]any `json:"user_context,omitempty"`
	}

	// DiscoverAvailableToolsInput is the input to
	// ActivityDiscoverAvailableTools.
	DiscoverAvailableToolsInput struct {
		AgentID     string         `json:"agent_id"`
		UserContext map[string]any `json:"user_context,omitempty"`
	}

	// DiscoverAvailableToolsOutput wraps the discovered tool list so the
	// activity layer returns plain data (engine.Future.Get decodes into a
	// concrete type, not a bare slice, to survive JSON round-tripping
	// cleanly across the activity boundary).
	DiscoverAvailableToolsOutput struct {
		Tools []ToolDescriptor `json:"tools"`
	}

	// CallLLMInput is the input to ActivityCallLLM.
	CallLLMInput struct {
		Messages    []message.Message  `json:"messages"`
		ModelID     string             `json:"model_id"`
		Tools       []model.ToolSchema `json:"tools,omitempty"`
		WorkspaceID string             `json:"workspace_id,omitempty"`
		UserContext map[string]any     `json:"user_context,omitempty"`
		Sampling    model.SamplingParams `json:"sampling,omitempty"`
		// WorkflowID/ExecutionID are carried through for streaming
		// correlation at the LLM collaborator (spec.md §4.2: "workflow
		// identifiers for streaming").
		WorkflowID  string `json:"workflow_id,omitempty"`
		ExecutionID string `json:"execution_id,omitempty"`
	}

	// CallLLMOutput is the output of ActivityCallLLM.
	CallLLMOutput struct {
		Message message.Message   `json:"message"`
		Usage   model.TokenUsage  `json:"usage"`
		Cost    float64           `json:"cost"`
	}

	// ExecuteMCPToolInput is the input to ActivityExecuteMCPTool.
	ExecuteMCPToolInput struct {
		ToolName         string         `json:"tool_name"`
		Arguments        map[string]any `json:"arguments"`
		ServerInstanceID string         `json:"server_instance_id,omitempty"`
	}

	// ExecuteMCPToolOutput is the output of ActivityExecuteMCPTool.
	ExecuteMCPToolOutput struct {
		Success       bool   `json:"success"`
		Result        string `json:"result"`
		ExecutionTime string `json:"execution_time,omitempty"`
	}

	// EvaluateGoalProgressInput is the input to ActivityEvaluateGoalProgress.
	EvaluateGoalProgressInput struct {
		Goal      AgentGoal          `json:"goal"`
		Messages  []message.Message  `json:"messages"`
		Iteration int                `json:"iteration"`
	}

	// EvaluateGoalProgressOutput is the output of
	// ActivityEvaluateGoalProgress.
	EvaluateGoalProgressOutput struct {
		GoalAchieved  bool   `json:"goal_achieved"`
		FinalResponse string `json:"final_response,omitempty"`
	}

	// CheckTaskCompletionInput is the input to ActivityCheckTaskCompletion,
	// the fallback used only when evaluate_goal_progress is unavailable.
	CheckTaskCompletionInput struct {
		Messages      []message.Message `json:"messages"`
		Iteration     int               `json:"iteration"`
		MaxIterations int               `json:"max_iterations"`
	}

	// CheckTaskCompletionOutput is the output of
	// ActivityCheckTaskCompletion.
	CheckTaskCompletionOutput struct {
		IsComplete bool   `json:"is_complete"`
		Reason     string `json:"reason,omitempty"`
	}

	// PublishWorkflowEventsInput is the input to
	// ActivityPublishWorkflowEvents: a JSON-encoded event list per spec.md
	// §4.2.
	PublishWorkflowEventsInput struct {
		Events []hooks.Event `json:"events"`
	}

	// PublishWorkflowEventsOutput acknowledges publication.
	PublishWorkflowEventsOutput struct {
		Acknowledged bool `json:"acknowledged"`
	}

	// PersistTranscriptInput is the input to ActivityPersistTranscript: a
	// batch of transcript events for one task's conversation.
	PersistTranscriptInput struct {
		AgentID string         `json:"agent_id"`
		TaskID  string         `json:"task_id"`
		Events  []memory.Event `json:"events"`
	}

	// PersistTranscriptOutput acknowledges persistence.
	PersistTranscriptOutput struct {
		Acknowledged bool `json:"acknowledged"`
	}
)

// BuildAgentConfigActivity resolves agent_id to its catalogue configuration.
func (a *Activities) BuildAgentConfigActivity(ctx context.Context, in BuildAgentConfigInput) (AgentConfigSnapshot, error) {
	cfg, err := a.Catalogue.GetAgentConfig(ctx, in.AgentID)
	if err != nil {
		return AgentConfigSnapshot{}, fmt.Errorf("build agent config: %w", err)
	}
	return AgentConfigSnapshot{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Description: cfg.Description,
		Instruction: cfg.Instruction,
		ModelID:     cfg.ModelID,
	}, nil
}

// DiscoverAvailableToolsActivity enumerates tools for the agent's configured
// tool servers.
func (a *Activities) DiscoverAvailableToolsActivity(ctx context.Context, in DiscoverAvailableToolsInput) (DiscoverAvailableToolsOutput, error) {
	descs, err := a.Catalogue.ListTools(ctx, in.AgentID)
	if err != nil {
		return DiscoverAvailableToolsOutput{}, fmt.Errorf("discover available tools: %w", err)
	}
	out := make([]ToolDescriptor, len(descs))
	for i, d := range descs {
		out[i] = ToolDescriptor{
			Name:             d.Name,
			Description:      d.Description,
			Parameters:       d.Parameters,
			ServerInstanceID: d.ServerInstanceID,
		}
	}
	return DiscoverAvailableToolsOutput{Tools: out}, nil
}

// CallLLMActivity invokes the LLM collaborator. Failures are returned
// as-is; model.Client implementations are responsible for wrapping them in
// *model.CallError so the workflow and retry policy can distinguish
// retryable transport errors from non-retryable auth/validation errors.
func (a *Activities) CallLLMActivity(ctx context.Context, in CallLLMInput) (CallLLMOutput, error) {
	resp, err := a.Model.Complete(ctx, model.Request{
		ModelID:     in.ModelID,
		Messages:    in.Messages,
		Tools:       in.Tools,
		Sampling:    in.Sampling,
		WorkspaceID: in.WorkspaceID,
		UserContext: in.UserContext,
	})
	if err != nil {
		return CallLLMOutput{}, err
	}
	return CallLLMOutput{Message: resp.Message, Usage: resp.Usage, Cost: resp.Cost}, nil
}

// ExecuteMCPToolActivity dispatches a single tool invocation. Per spec.md
// §4.1, transport-level failures return an error (toolerrors.ToolError);
// a tool that ran but reported failure comes back as Success: false with no
// error.
func (a *Activities) ExecuteMCPToolActivity(ctx context.Context, in ExecuteMCPToolInput) (ExecuteMCPToolOutput, error) {
	resp, err := a.Tools.CallTool(ctx, mcptool.Request{
		ToolName:         in.ToolName,
		Arguments:        in.Arguments,
		ServerInstanceID: in.ServerInstanceID,
	})
	if err != nil {
		return ExecuteMCPToolOutput{}, err
	}
	return ExecuteMCPToolOutput{
		Success:       resp.Success,
		Result:        resp.Result,
		ExecutionTime: resp.ExecutionTime.String(),
	}, nil
}

// EvaluateGoalProgressActivity judges whether the goal has been achieved.
// Errors are swallowed by the caller (workflow), per the error-handling
// design: GoalEvaluationFailed assumes the goal is not yet achieved.
func (a *Activities) EvaluateGoalProgressActivity(ctx context.Context, in EvaluateGoalProgressInput) (EvaluateGoalProgressOutput, error) {
	if a.Evaluator == nil {
		return EvaluateGoalProgressOutput{}, fmt.Errorf("runtime: no goal evaluator configured")
	}
	achieved, final, err := a.Evaluator.Evaluate(ctx, in.Goal, in.Messages, in.Iteration)
	if err != nil {
		return EvaluateGoalProgressOutput{}, err
	}
	return EvaluateGoalProgressOutput{GoalAchieved: achieved, FinalResponse: final}, nil
}

// CheckTaskCompletionActivity is the iteration-count fallback used only
// when evaluate_goal_progress is unavailable (spec.md §4.2).
func (a *Activities) CheckTaskCompletionActivity(_ context.Context, in CheckTaskCompletionInput) (CheckTaskCompletionOutput, error) {
	if in.Iteration >= in.MaxIterations {
		return CheckTaskCompletionOutput{IsComplete: true, Reason: "max iterations reached"}, nil
	}
	return CheckTaskCompletionOutput{IsComplete: false}, nil
}

// PublishWorkflowEventsActivity delivers events to the external broker.
// Single attempt, best-effort: Publisher.Publish reports no errors, so the
// activity acknowledges whenever a Publisher is configured, and the caller
// (hooks.Manager via an async activity call) never blocks the workflow on it.
func (a *Activities) PublishWorkflowEventsActivity(ctx context.Context, in PublishWorkflowEventsInput) (PublishWorkflowEventsOutput, error) {
	if a.Publisher == nil {
		return PublishWorkflowEventsOutput{Acknowledged: false}, nil
	}
	a.Publisher.Publish(in.Events)
	return PublishWorkflowEventsOutput{Acknowledged: true}, nil
}

// PersistTranscriptActivity appends the given transcript events to Memory.
// Best-effort: a nil Memory or a store error never fails the workflow, since
// transcript persistence is additive to (not a dependency of) the workflow's
// own event-sourced history.
func (a *Activities) PersistTranscriptActivity(ctx context.Context, in PersistTranscriptInput) (PersistTranscriptOutput, error) {
	if a.Memory == nil {
		return PersistTranscriptOutput{Acknowledged: false}, nil
	}
	if err := a.Memory.AppendEvents(ctx, in.AgentID, in.TaskID, in.Events...); err != nil {
		return PersistTranscriptOutput{}, fmt.Errorf("persist transcript: %w", err)
	}
	return PersistTranscriptOutput{Acknowledged: true}, nil
}

// Register binds every activity method to eng under its contractual name,
// with the retry policies spec.md §4.2 assigns.
func (a *Activities) Register(ctx context.Context, eng engine.Engine) error {
	type entry struct {
		name    string
		handler engine.ActivityFunc
		policy  engine.RetryPolicy
	}
	entries := []entry{
		{ActivityBuildAgentConfig, activityFunc(a.BuildAgentConfigActivity), defaultRetryPolicy},
		{ActivityDiscoverAvailableTools, activityFunc(a.DiscoverAvailableToolsActivity), defaultRetryPolicy},
		{ActivityCallLLM, activityFunc(a.CallLLMActivity), defaultRetryPolicy},
		{ActivityExecuteMCPTool, activityFunc(a.ExecuteMCPToolActivity), defaultRetryPolicy},
		{ActivityEvaluateGoalProgress, activityFunc(a.EvaluateGoalProgressActivity), defaultRetryPolicy},
		{ActivityCheckTaskCompletion, activityFunc(a.CheckTaskCompletionActivity), defaultRetryPolicy},
		{ActivityPublishWorkflowEvents, activityFunc(a.PublishWorkflowEventsActivity), publishRetryPolicy},
		{ActivityPersistTranscript, activityFunc(a.PersistTranscriptActivity), publishRetryPolicy},
	}
	for _, e := range entries {
		if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
			Name:    e.name,
			Handler: e.handler,
			Options: engine.ActivityOptions{RetryPolicy: e.policy},
		}); err != nil {
			return fmt.Errorf("register activity %q: %w", e.name, err)
		}
	}
	return nil
}

// activityFunc adapts a typed (context.Context, In) (Out, error) method into
// the engine's any-typed ActivityFunc signature via JSON-shaped decoding,
// matching the teacher's decode-in-executor pattern
// (runtime/agent/runtime/runtime_decode_in_executor_test.go) of accepting
// loosely-typed activity input at the engine boundary.
func activityFunc[In, Out any](fn func(context.Context, In) (Out, error)) engine.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, err := decodeInto[In](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}
