package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goadesign/agentrun/budget"
	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/memory"
	"github.com/goadesign/agentrun/message"
	"github.com/goadesign/agentrun/model"
)

// WorkflowName is the contractual name of the Agent Execution Workflow entry
// point, spec.md §6.
const WorkflowName = "AgentExecutionWorkflow"

// TaskQueue is the contractual task queue for the Agent Execution Workflow.
const TaskQueue = "agent-tasks"

// Query names, spec.md §4.6.
const (
	QueryExecutionStatus     = "get_execution_status"
	QueryConversationHistory = "get_conversation_history"
	QueryGoalProgress        = "get_goal_progress"
	QueryWorkflowEvents      = "get_workflow_events"
	QueryLatestEvents        = "get_latest_events"
	QueryBudgetStatus        = "get_budget_status"
)

// Runtime implements the Agent Execution Workflow by closing over the
// Activities it dispatches. Grounded directly on
// runtime/agents/runtime/workflow.go's Workflow struct, which similarly
// bundles its activity dependencies behind typed ExecuteActivity calls.
type Runtime struct {
	Activities *Activities
}

// NewRuntime constructs a Runtime bound to the given activity implementations.
func NewRuntime(activities *Activities) *Runtime {
	return &Runtime{Activities: activities}
}

// Register binds the Agent Execution Workflow and its activities to eng.
func (r *Runtime) Register(ctx context.Context, eng engine.Engine) error {
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: TaskQueue,
		Handler:   r.ExecuteWorkflow,
	}); err != nil {
		return fmt.Errorf("register workflow %q: %w", WorkflowName, err)
	}
	if r.Activities != nil {
		return r.Activities.Register(ctx, eng)
	}
	return nil
}

// execState is the full workflow-local state for one execution: the
// replayable AgentExecutionState plus the workflow-local collaborators
// (BudgetTracker, EventManager) that spec.md §5 forbids sharing or mutating
// from activities.
type execState struct {
	state      AgentExecutionState
	tracker    *budget.Tracker
	events     *hooks.Manager
	transcript transcriptRecorder
	paused     bool
	callCosts  []float64
	cancelled  bool
}

// workflowPublisher adapts engine.WorkflowContext into a hooks.Publisher by
// firing PublishWorkflowEventsActivity asynchronously, matching the
// teacher's async publish-hook dispatch (runtime/agents/runtime/workflow.go's
// r.publishHook): publication never blocks the main loop.
type workflowPublisher struct {
	wfCtx engine.WorkflowContext
}

func (p workflowPublisher) Publish(events []hooks.Event) {
	ctx := p.wfCtx.Context()
	_, _ = p.wfCtx.ExecuteActivityAsync(ctx, engine.ActivityRequest{
		Name:        ActivityPublishWorkflowEvents,
		Input:       PublishWorkflowEventsInput{Events: events},
		RetryPolicy: publishRetryPolicy,
	})
}

// transcriptRecorder fires ActivityPersistTranscript asynchronously whenever
// the conversation gains new transcript entries, the same fire-and-forget
// dispatch shape as workflowPublisher: persisting the transcript is additive
// to the workflow's own event history (spec.md §1 Non-goals) and must never
// block or fail the main loop.
type transcriptRecorder struct {
	wfCtx   engine.WorkflowContext
	agentID string
	taskID  string
}

func (r transcriptRecorder) record(evts ...memory.Event) {
	if len(evts) == 0 {
		return
	}
	ctx := r.wfCtx.Context()
	_, _ = r.wfCtx.ExecuteActivityAsync(ctx, engine.ActivityRequest{
		Name: ActivityPersistTranscript,
		Input: PersistTranscriptInput{
			AgentID: r.agentID,
			TaskID:  r.taskID,
			Events:  evts,
		},
		RetryPolicy: publishRetryPolicy,
	})
}

// ExecuteWorkflow is the AgentExecutionWorkflow entry point, matching
// engine.WorkflowFunc's signature so it can be registered directly.
func (r *Runtime) ExecuteWorkflow(wfCtx engine.WorkflowContext, input any) (any, error) {
	req, err := decodeInto[AgentExecutionRequest](input)
	if err != nil {
		return nil, err
	}

	es := &execState{
		tracker: budget.NewTracker(budgetFromRequest(req), defaultWarningThreshold),
	}
	es.events = hooks.NewManager(hooks.Immediate, workflowPublisher{wfCtx: wfCtx})
	es.transcript = transcriptRecorder{wfCtx: wfCtx, agentID: req.AgentID, taskID: req.TaskID}

	goal := goalFromRequest(req)
	es.state = AgentExecutionState{
		ExecutionID:     wfCtx.WorkflowID(),
		AgentID:         req.AgentID,
		TaskID:          req.TaskID,
		UserID:          req.UserID,
		Goal:            goal,
		Status:          StatusInitializing,
		UserContextData: req.TaskParameters,
		BudgetUSD:       es.tracker.Limit,
	}

	if qr, ok := wfCtx.(engine.QueryRegistrar); ok {
		r.registerQueries(qr, es)
	}

	es.emit(wfCtx, hooks.WorkflowStarted, nil)

	sigs := newSignalController(wfCtx)

	if err := r.initialize(wfCtx, es, req); err != nil {
		es.state.Status = StatusFailed
		es.state.ErrorMessage = err.Error()
		es.emit(wfCtx, hooks.WorkflowFailed, map[string]any{"error": err.Error()})
		return r.result(es), nil
	}

	r.runLoop(wfCtx, es, sigs)

	return r.finalize(wfCtx, es), nil
}

// initialize resolves the agent config and tool inventory, validating both
// per spec.md §4.6 step 1.
func (r *Runtime) initialize(wfCtx engine.WorkflowContext, es *execState, req AgentExecutionRequest) error {
	ctx := wfCtx.Context()
	es.state.Status = StatusPlanning

	var cfg AgentConfigSnapshot
	if err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name:        ActivityBuildAgentConfig,
		Input:       BuildAgentConfigInput{AgentID: req.AgentID, UserContext: req.TaskParameters},
		RetryPolicy: defaultRetryPolicy,
	}, &cfg); err != nil {
		return err
	}
	if cfg.ID == "" || cfg.Name == "" || cfg.ModelID == "" {
		return newAgentConfigInvalid("agent config missing id, name, or model_id")
	}
	es.state.AgentConfig = cfg

	var toolsOut DiscoverAvailableToolsOutput
	if err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name:        ActivityDiscoverAvailableTools,
		Input:       DiscoverAvailableToolsInput{AgentID: req.AgentID, UserContext: req.TaskParameters},
		RetryPolicy: defaultRetryPolicy,
	}, &toolsOut); err != nil {
		return err
	}
	for _, t := range toolsOut.Tools {
		if t.Name == "" || t.Description == "" {
			return newToolsInvalid(fmt.Sprintf("tool %q missing name or description", t.Name))
		}
	}
	es.state.AvailableTools = toolsOut.Tools
	return nil
}

// runLoop drives the main reason-act loop, spec.md §4.6 step 2.
func (r *Runtime) runLoop(wfCtx engine.WorkflowContext, es *execState, sigs *signalController) {
	ctx := wfCtx.Context()
	es.state.Status = StatusExecuting

	for {
		if r.applySignals(wfCtx, es, sigs) {
			return // cancelled
		}

		es.state.CurrentIteration++
		// Pre-check guards only against conditions that can flip
		// asynchronously between ticks (success/budget/cancel); the
		// iteration cap itself uses a strict "over the cap" test here so
		// the iteration that reaches exactly max_iterations still runs —
		// the post-check below is what actually stops the loop at the cap
		// (spec.md §8 boundary: max_iterations=1 runs exactly one
		// iteration, not zero).
		if _, stop := r.checkTerminationWith(es, es.state.CurrentIteration > es.state.Goal.MaxIterations); stop {
			es.state.CurrentIteration--
			return
		}

		if cancelled := r.awaitUnpaused(wfCtx, es, sigs); cancelled {
			return
		}

		es.emit(wfCtx, hooks.IterationStarted, map[string]any{"iteration": es.state.CurrentIteration})

		msgs := r.buildMessages(wfCtx, es)

		if cancelled := r.awaitBudgetGate(wfCtx, es, sigs); cancelled {
			return
		}

		var out CallLLMOutput
		es.emit(wfCtx, hooks.LLMCallStarted, map[string]any{"iteration": es.state.CurrentIteration})
		err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
			Name: ActivityCallLLM,
			Input: CallLLMInput{
				Messages:    msgs,
				ModelID:     es.state.AgentConfig.ModelID,
				Tools:       toolSchemas(es.state.AvailableTools),
				WorkflowID:  wfCtx.WorkflowID(),
				ExecutionID: es.state.ExecutionID,
			},
			RetryPolicy: defaultRetryPolicy,
		}, &out)
		if err != nil {
			es.emit(wfCtx, hooks.LLMCallFailed, map[string]any{"error": err.Error()})
			es.state.Status = StatusFailed
			es.state.ErrorMessage = err.Error()
			return
		}
		es.tracker.AddCost(out.Cost)
		es.callCosts = append(es.callCosts, out.Cost)
		asst := out.Message
		asst.Role = message.RoleAssistant
		toolCalls := message.ExtractToolCalls(asst)
		for i := range toolCalls {
			toolCalls[i].Function.Name = message.NormalizeToolName(toolCalls[i].Function.Name)
		}
		// ExtractToolCalls defaults missing id/type/arguments fields on the
		// slice it returns; apply the same defaulting (and the canonical
		// completion name) to the stored message so a later tool message's
		// ToolCallID always matches the id a preceding assistant message
		// actually carries (invariant 5).
		asst.ToolCalls = toolCalls
		es.emit(wfCtx, hooks.LLMCallCompleted, map[string]any{
			"content":         asst.Content,
			"tool_call_count": len(toolCalls),
			"cost":            out.Cost,
		})

		if asst.Content != "" || len(toolCalls) > 0 {
			es.state.Messages = append(es.state.Messages, asst)
			es.transcript.record(memory.Event{Type: memory.EventAssistantMessage, Timestamp: wfCtx.Now(), Data: asst})
		}

		r.dispatchToolCalls(wfCtx, es, sigs, toolCalls)

		if !es.state.Success && !es.cancelled {
			r.evaluateGoal(wfCtx, es)
		}

		r.emitBudgetEvents(wfCtx, es)

		es.emit(wfCtx, hooks.IterationCompleted, map[string]any{"iteration": es.state.CurrentIteration})

		if _, stop := r.checkTermination(es); stop {
			return
		}
	}
}

// applySignals drains every non-blocking signal once, applying pause/resume/
// cancel/feedback/update_budget effects to es. Returns true iff a cancel
// signal was applied this tick.
func (r *Runtime) applySignals(wfCtx engine.WorkflowContext, es *execState, sigs *signalController) bool {
	if s, ok := sigs.pollCancel(); ok {
		es.state.Status = StatusCancelled
		es.state.FinalResponse = fmt.Sprintf("Execution cancelled: %s", s.Reason)
		es.cancelled = true
		es.emit(wfCtx, hooks.WorkflowCancelled, map[string]any{"reason": s.Reason})
		return true
	}
	if _, ok := sigs.pollPause(); ok {
		es.paused = true
	}
	if _, ok := sigs.pollResume(); ok {
		es.paused = false
	}
	if s, ok := sigs.pollFeedback(); ok {
		feedbackMsg := message.Message{
			Role:     message.RoleUser,
			Content:  s.Text,
			Metadata: map[string]any{"type": "human_feedback"},
		}
		es.state.Messages = append(es.state.Messages, feedbackMsg)
		es.transcript.record(memory.Event{Type: memory.EventUserMessage, Timestamp: wfCtx.Now(), Data: feedbackMsg})
	}
	if s, ok := sigs.pollUpdateBudget(); ok {
		wasExceeded := es.tracker.IsExceeded()
		es.tracker.UpdateLimit(s.NewBudgetUSD)
		es.state.BudgetUSD = s.NewBudgetUSD
		if wasExceeded && !es.tracker.IsExceeded() {
			es.paused = false
			es.state.PendingApproval = nil
		}
	}
	return false
}

// checkTermination evaluates the priority-ordered termination conditions of
// spec.md §4.6 step 3, using ">=" for the iteration cap (the canonical
// definition: a run that has executed max_iterations iterations stops here).
func (r *Runtime) checkTermination(es *execState) (string, bool) {
	return r.checkTerminationWith(es, es.state.CurrentIteration >= es.state.Goal.MaxIterations)
}

// checkTerminationWith evaluates the same priority-ordered conditions as
// checkTermination but with the iteration-cap test supplied by the caller,
// so the pre-work guard (strict "over the cap") and the canonical
// definition (">=") can share one implementation.
func (r *Runtime) checkTerminationWith(es *execState, iterationCapReached bool) (string, bool) {
	switch {
	case es.state.Success:
		return "Goal achieved", true
	case iterationCapReached:
		return "Maximum iterations reached", true
	case es.tracker.IsExceeded():
		return "Budget exceeded", true
	case es.cancelled:
		return "Cancelled", true
	default:
		return "", false
	}
}

// awaitUnpaused blocks while es.paused is true, polling for resume or
// cancel. Returns true iff cancellation was observed.
func (r *Runtime) awaitUnpaused(wfCtx engine.WorkflowContext, es *execState, sigs *signalController) bool {
	ctx := wfCtx.Context()
	for es.paused {
		if s, ok := sigs.pollCancel(); ok {
			es.state.Status = StatusCancelled
			es.state.FinalResponse = fmt.Sprintf("Execution cancelled: %s", s.Reason)
			es.cancelled = true
			es.emit(wfCtx, hooks.WorkflowCancelled, map[string]any{"reason": s.Reason})
			return true
		}
		if _, ok := sigs.pollResume(); ok {
			es.paused = false
			break
		}
		if err := wfCtx.Sleep(ctx, pollInterval); err != nil {
			return true
		}
	}
	return false
}

// projectedCallCost estimates the cost of the next LLM call from the
// average of costs observed so far (spec.md §4.3: "estimated from recent
// message sizes"; this module approximates via recent call costs, the
// closest observable proxy without a token-counting tokenizer dependency).
func (es *execState) projectedCallCost() float64 {
	if len(es.callCosts) == 0 {
		return 0
	}
	var sum float64
	n := len(es.callCosts)
	start := 0
	if n > 3 {
		start = n - 3
	}
	for _, c := range es.callCosts[start:] {
		sum += c
	}
	return sum / float64(n-start)
}

// awaitBudgetGate pauses at a waiting_for_approval gate when the projected
// cost of the next call would exceed the remaining budget (spec.md §4.3),
// awaiting a budget update or resume signal.
func (r *Runtime) awaitBudgetGate(wfCtx engine.WorkflowContext, es *execState, sigs *signalController) bool {
	projected := es.projectedCallCost()
	if projected <= 0 || projected <= es.tracker.Remaining() {
		return false
	}
	es.state.Status = StatusWaitingForApproval
	es.state.PendingApproval = &PendingApproval{
		Reason:      "projected cost would exceed remaining budget",
		RequestedAt: wfCtx.Now().Format(time.RFC3339),
		ProjectedBy: projected,
	}
	es.emit(wfCtx, hooks.HumanApprovalRequested, map[string]any{"reason": es.state.PendingApproval.Reason, "projected_cost": projected})

	resumed, budgetSig, cancelSig, didCancel, err := sigs.waitResumeOrBudgetOrCancel(wfCtx)
	if err != nil || didCancel {
		if didCancel {
			es.state.Status = StatusCancelled
			es.state.FinalResponse = fmt.Sprintf("Execution cancelled: %s", cancelSig.Reason)
			es.cancelled = true
			es.emit(wfCtx, hooks.WorkflowCancelled, map[string]any{"reason": cancelSig.Reason})
		}
		return true
	}
	if !resumed {
		es.tracker.UpdateLimit(budgetSig.NewBudgetUSD)
		es.state.BudgetUSD = budgetSig.NewBudgetUSD
	}
	es.state.PendingApproval = nil
	es.state.Status = StatusExecuting
	es.emit(wfCtx, hooks.HumanApprovalReceived, map[string]any{"approved": true})
	return false
}

// dispatchToolCalls executes each tool call in order, honoring the
// completion sentinel and an optional per-call human-approval gate.
func (r *Runtime) dispatchToolCalls(wfCtx engine.WorkflowContext, es *execState, sigs *signalController, calls []message.ToolCall) {
	ctx := wfCtx.Context()
	for _, tc := range calls {
		name := message.NormalizeToolName(tc.Function.Name)
		if message.IsCompletionTool(name) {
			es.state.Success = true
			es.state.FinalResponse = message.DecodeCompletionArguments(tc.Function.Arguments, "Task completed.")
			return
		}

		if es.state.Goal.RequiresHumanApproval {
			if cancelled := r.awaitToolApproval(wfCtx, es, sigs, tc); cancelled {
				return
			}
			if es.state.PendingApproval != nil {
				// rejected: awaitToolApproval recorded a rejection message and
				// left PendingApproval set; clear it and skip execution.
				es.state.PendingApproval = nil
				continue
			}
		}

		es.state.Status = StatusToolExecution
		var args map[string]any
		_ = decodeJSONInto(tc.Function.Arguments, &args)

		es.emit(wfCtx, hooks.ToolCallStarted, map[string]any{"tool_name": tc.Function.Name, "tool_call_id": tc.ID})
		es.transcript.record(memory.Event{Type: memory.EventToolCall, Timestamp: wfCtx.Now(), Data: tc})

		var out ExecuteMCPToolOutput
		err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
			Name:        ActivityExecuteMCPTool,
			Input:       ExecuteMCPToolInput{ToolName: tc.Function.Name, Arguments: args},
			RetryPolicy: defaultRetryPolicy,
		}, &out)

		var content string
		switch {
		case err != nil:
			content = "Tool execution failed: " + err.Error()
			es.emit(wfCtx, hooks.ToolCallFailed, map[string]any{"tool_name": tc.Function.Name, "error": err.Error()})
		case !out.Success:
			content = "Tool execution failed: " + out.Result
			es.emit(wfCtx, hooks.ToolCallFailed, map[string]any{"tool_name": tc.Function.Name, "error": out.Result})
		default:
			content = out.Result
			es.emit(wfCtx, hooks.ToolCallCompleted, map[string]any{"tool_name": tc.Function.Name, "result": out.Result})
		}

		toolMsg := message.Message{
			Role:       message.RoleTool,
			Content:    content,
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
		}
		es.state.Messages = append(es.state.Messages, toolMsg)
		es.transcript.record(memory.Event{Type: memory.EventToolResult, Timestamp: wfCtx.Now(), Data: toolMsg})
		es.state.Status = StatusExecuting
	}
}

// awaitToolApproval gates a single tool invocation behind approve_action
// when the goal requires human approval. On rejection, a rejection message
// is appended to state.Messages and PendingApproval is left non-nil as a
// sentinel for the caller, which skips execution and clears it.
func (r *Runtime) awaitToolApproval(wfCtx engine.WorkflowContext, es *execState, sigs *signalController, tc message.ToolCall) bool {
	prevStatus := es.state.Status
	es.state.Status = StatusWaitingForApproval
	es.state.PendingApproval = &PendingApproval{
		Reason:      fmt.Sprintf("approval required before executing tool %q", tc.Function.Name),
		RequestedAt: wfCtx.Now().Format(time.RFC3339),
	}
	es.emit(wfCtx, hooks.HumanApprovalRequested, map[string]any{"tool_name": tc.Function.Name})

	approve, got, cancelSig, didCancel, timedOut, err := sigs.waitApproveOrCancel(wfCtx)
	if err != nil || didCancel {
		if didCancel {
			es.state.Status = StatusCancelled
			es.state.FinalResponse = fmt.Sprintf("Execution cancelled: %s", cancelSig.Reason)
			es.cancelled = true
			es.emit(wfCtx, hooks.WorkflowCancelled, map[string]any{"reason": cancelSig.Reason})
		}
		return true
	}

	es.state.Status = prevStatus
	if timedOut || (got && !approve.Approved) {
		reason := "approval timed out"
		if got {
			reason = approve.Feedback
		}
		rejection := message.Message{
			Role:    message.RoleUser,
			Content: fmt.Sprintf("Tool %q was not approved: %s", tc.Function.Name, reason),
		}
		es.state.Messages = append(es.state.Messages, rejection)
		es.transcript.record(memory.Event{Type: memory.EventUserMessage, Timestamp: wfCtx.Now(), Data: rejection})
		es.emit(wfCtx, hooks.HumanApprovalReceived, map[string]any{"approved": false})
		return false // PendingApproval stays non-nil: caller skips execution
	}

	es.state.PendingApproval = nil
	es.emit(wfCtx, hooks.HumanApprovalReceived, map[string]any{"approved": true})
	return false
}

// evaluateGoal invokes evaluate_goal_progress, falling back to
// check_task_completion when no evaluator is configured (spec.md §4.2).
// Evaluator errors are swallowed per the GoalEvaluationFailed policy (§7).
func (r *Runtime) evaluateGoal(wfCtx engine.WorkflowContext, es *execState) {
	ctx := wfCtx.Context()
	es.state.Status = StatusEvaluating

	var out EvaluateGoalProgressOutput
	err := wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name: ActivityEvaluateGoalProgress,
		Input: EvaluateGoalProgressInput{
			Goal:      es.state.Goal,
			Messages:  es.state.Messages,
			Iteration: es.state.CurrentIteration,
		},
		RetryPolicy: defaultRetryPolicy,
	}, &out)
	if err == nil {
		es.state.Success = out.GoalAchieved
		if out.FinalResponse != "" {
			es.state.FinalResponse = out.FinalResponse
		}
		es.state.Status = StatusExecuting
		return
	}

	// check_task_completion is a termination-signal fallback, not a goal-
	// achievement judge: it only tells the loop whether iteration exhaustion
	// has been reached (already covered directly by checkTermination's
	// max-iterations check), so it must never set state.success — doing so
	// would mark an exhausted, unfulfilled run as successful.
	_ = wfCtx.ExecuteActivity(ctx, engine.ActivityRequest{
		Name: ActivityCheckTaskCompletion,
		Input: CheckTaskCompletionInput{
			Messages:      es.state.Messages,
			Iteration:     es.state.CurrentIteration,
			MaxIterations: es.state.Goal.MaxIterations,
		},
		RetryPolicy: defaultRetryPolicy,
	}, &CheckTaskCompletionOutput{})
	es.state.Status = StatusExecuting
}

// emitBudgetEvents emits BudgetWarning (at most once per workflow, per
// invariant 3) and BudgetExceeded as thresholds are crossed.
func (r *Runtime) emitBudgetEvents(wfCtx engine.WorkflowContext, es *execState) {
	if es.tracker.ShouldWarn() {
		es.emit(wfCtx, hooks.BudgetWarning, map[string]any{
			"cost_usd":  es.tracker.Consumed,
			"limit_usd": es.tracker.Limit,
		})
		es.tracker.MarkWarningSent()
	}
	if es.tracker.IsExceeded() {
		es.emit(wfCtx, hooks.BudgetExceeded, map[string]any{
			"cost_usd":  es.tracker.Consumed,
			"limit_usd": es.tracker.Limit,
		})
	}
}

// buildMessages constructs the message list for the next call_llm
// invocation, spec.md §4.5: system + initial user message on iteration 1,
// a short status message thereafter.
func (r *Runtime) buildMessages(wfCtx engine.WorkflowContext, es *execState) []message.Message {
	if es.state.CurrentIteration == 1 {
		sys := message.BuildSystemPrompt(message.SystemPromptInput{
			AgentName:        es.state.AgentConfig.Name,
			AgentInstruction: es.state.AgentConfig.Instruction,
			GoalDescription:  es.state.Goal.Description,
			SuccessCriteria:  es.state.Goal.SuccessCriteria,
			Tools:            toolPromptDescriptors(es.state.AvailableTools),
		})
		initial := message.Message{Role: message.RoleUser, Content: es.state.Goal.Description}
		es.state.Messages = append([]message.Message{sys, initial}, es.state.Messages...)
		es.transcript.record(memory.Event{Type: memory.EventUserMessage, Timestamp: wfCtx.Now(), Data: initial})
	} else {
		es.state.Messages = append(es.state.Messages, message.StatusMessage(
			es.state.CurrentIteration, es.state.Goal.MaxIterations, es.tracker.Remaining(),
		))
	}
	return append([]message.Message(nil), es.state.Messages...)
}

// finalize sets the terminal status and returns the workflow result, spec.md
// §4.6 step 4.
func (r *Runtime) finalize(wfCtx engine.WorkflowContext, es *execState) AgentExecutionResult {
	if es.state.Status != StatusCancelled {
		if es.state.Success {
			es.state.Status = StatusCompleted
			es.emit(wfCtx, hooks.WorkflowCompleted, map[string]any{"iterations": es.state.CurrentIteration})
		} else {
			es.state.Status = StatusFailed
			if es.tracker.IsExceeded() && es.state.ErrorMessage == "" {
				es.state.ErrorMessage = ErrBudgetExceeded.Error()
			} else if es.state.CurrentIteration >= es.state.Goal.MaxIterations && es.state.ErrorMessage == "" {
				es.state.ErrorMessage = ErrMaxIterationsReached.Error()
			}
			es.emit(wfCtx, hooks.WorkflowFailed, map[string]any{"error": es.state.ErrorMessage})
		}
	}
	return r.result(es)
}

func (r *Runtime) result(es *execState) AgentExecutionResult {
	finalResponse := es.state.FinalResponse
	if finalResponse == "" {
		finalResponse = lastNonEmptyAssistantContent(es.state.Messages)
	}
	if finalResponse == "" {
		finalResponse = "No response generated."
	}
	return AgentExecutionResult{
		TaskID:                  es.state.TaskID,
		AgentID:                 es.state.AgentID,
		Success:                 es.state.Success,
		FinalResponse:           finalResponse,
		TotalCost:               es.tracker.Consumed,
		ReasoningIterationsUsed: es.state.CurrentIteration,
		ConversationHistory:     es.state.Messages,
		ErrorMessage:            es.state.ErrorMessage,
	}
}

func lastNonEmptyAssistantContent(msgs []message.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func toolSchemas(tools []ToolDescriptor) []model.ToolSchema {
	out := make([]model.ToolSchema, len(tools))
	for i, t := range tools {
		out[i] = model.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

func toolPromptDescriptors(tools []ToolDescriptor) []message.ToolDescriptor {
	out := make([]message.ToolDescriptor, len(tools))
	for i, t := range tools {
		out[i] = message.ToolDescriptor{Name: t.Name, Description: t.Description}
	}
	return out
}

// emit stamps an event with a fresh id and the workflow clock, then records
// it through the event manager.
func (es *execState) emit(wfCtx engine.WorkflowContext, typ hooks.EventType, extra map[string]any) {
	es.events.AddEvent(hooks.New(uuid.New().String(), typ, wfCtx.Now(), es.state.TaskID, es.state.AgentID, es.state.ExecutionID, extra))
}

// registerQueries binds the six read-only queries of spec.md §4.6.
func (r *Runtime) registerQueries(qr engine.QueryRegistrar, es *execState) {
	_ = qr.SetQueryHandler(QueryExecutionStatus, func(args ...any) (any, error) {
		return ExecutionStatusSnapshot{
			Status:           es.state.Status,
			CurrentIteration: es.state.CurrentIteration,
			MaxIterations:    es.state.Goal.MaxIterations,
			CostUSD:          es.tracker.Consumed,
			BudgetRemaining:  es.tracker.Remaining(),
			Paused:           es.paused,
			PendingApproval:  es.state.PendingApproval != nil,
		}, nil
	})
	_ = qr.SetQueryHandler(QueryConversationHistory, func(args ...any) (any, error) {
		return append([]message.Message(nil), es.state.Messages...), nil
	})
	_ = qr.SetQueryHandler(QueryGoalProgress, func(args ...any) (any, error) {
		pct := 0.0
		if es.state.Goal.MaxIterations > 0 {
			pct = float64(es.state.CurrentIteration) / float64(es.state.Goal.MaxIterations)
		}
		return GoalProgressSnapshot{Goal: es.state.Goal, ProgressPercentage: pct}, nil
	})
	_ = qr.SetQueryHandler(QueryWorkflowEvents, func(args ...any) (any, error) {
		return es.events.History(), nil
	})
	_ = qr.SetQueryHandler(QueryLatestEvents, func(args ...any) (any, error) {
		limit := 0
		if len(args) > 0 {
			if n, ok := args[0].(int); ok {
				limit = n
			}
		}
		return es.events.Latest(limit), nil
	})
	_ = qr.SetQueryHandler(QueryBudgetStatus, func(args ...any) (any, error) {
		return BudgetStatusSnapshot{
			CostUSD:        es.tracker.Consumed,
			LimitUSD:       es.tracker.Limit,
			RemainingUSD:   es.tracker.Remaining(),
			UtilizationPct: es.tracker.UsagePercentage(),
			CostPerLLMCall: append([]float64(nil), es.callCosts...),
		}, nil
	})
}
