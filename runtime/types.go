// Package runtime implements the Agent Execution Workflow (C6) and its
// supporting activities: the durable, signal-driven reason-act loop that
// calls an LLM, dispatches tool invocations, enforces budget/iteration
// limits, and streams progress events.
//
// Grounded directly on the teacher's runtime/agents/runtime/workflow.go
// (ExecuteWorkflow/runLoop shape) restructured around this spec's
// iteration/budget/goal-evaluation loop instead of goa-ai's policy/cap loop,
// and on runtime/agent/interrupt.Controller for the pause/resume signal
// pattern.
package runtime

import "github.com/goadesign/agentrun/message"

// Status is the lifecycle state of an Agent Execution Workflow.
type Status string

const (
	StatusInitializing       Status = "initializing"
	StatusPlanning           Status = "planning"
	StatusExecuting          Status = "executing"
	StatusWaitingForApproval Status = "waiting_for_approval"
	StatusToolExecution      Status = "tool_execution"
	StatusEvaluating         Status = "evaluating"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// defaultBudgetUSD is applied when a request carries a zero/absent budget_usd.
const defaultBudgetUSD = 10.0

// defaultMaxIterations is applied when a request carries a zero/absent
// max_reasoning_iterations.
const defaultMaxIterations = 10

// defaultWarningThreshold is the fraction of budget consumption at which a
// BudgetWarning event fires, absent an override.
const defaultWarningThreshold = 0.8

type (
	// AgentExecutionRequest is the input to the Agent Execution Workflow.
	AgentExecutionRequest struct {
		TaskID                 string         `json:"task_id"`
		AgentID                string         `json:"agent_id"`
		UserID                 string         `json:"user_id"`
		TaskQuery              string         `json:"task_query"`
		TaskParameters         map[string]any `json:"task_parameters,omitempty"`
		TimeoutSeconds         int            `json:"timeout_seconds,omitempty"`
		MaxReasoningIterations int            `json:"max_reasoning_iterations,omitempty"`
		BudgetUSD              float64        `json:"budget_usd,omitempty"`
		RequiresHumanApproval  bool           `json:"requires_human_approval,omitempty"`
		WorkflowMetadata       map[string]any `json:"workflow_metadata,omitempty"`
	}

	// AgentGoal is derived from the request at workflow start.
	AgentGoal struct {
		ID                    string         `json:"id"`
		Description           string         `json:"description"`
		SuccessCriteria       []string       `json:"success_criteria,omitempty"`
		MaxIterations         int            `json:"max_iterations"`
		RequiresHumanApproval bool           `json:"requires_human_approval"`
		Context               map[string]any `json:"context,omitempty"`
	}

	// AgentExecutionState is the workflow-local state mutated only by the
	// workflow coroutine, never by activities.
	AgentExecutionState struct {
		ExecutionID      string               `json:"execution_id"`
		AgentID          string               `json:"agent_id"`
		TaskID           string               `json:"task_id"`
		UserID           string               `json:"user_id"`
		Goal             AgentGoal            `json:"goal"`
		Status           Status               `json:"status"`
		CurrentIteration int                  `json:"current_iteration"`
		Messages         []message.Message    `json:"messages"`
		AgentConfig      AgentConfigSnapshot  `json:"agent_config"`
		AvailableTools   []ToolDescriptor     `json:"available_tools"`
		FinalResponse    string               `json:"final_response,omitempty"`
		Success          bool                 `json:"success"`
		BudgetUSD        float64              `json:"budget_usd"`
		UserContextData  map[string]any       `json:"user_context_data,omitempty"`
		PendingApproval  *PendingApproval     `json:"pending_approval,omitempty"`
		ErrorMessage     string               `json:"error_message,omitempty"`
	}

	// AgentConfigSnapshot is the plain-data agent config carried in workflow
	// state after build_agent_config resolves it.
	AgentConfigSnapshot struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Instruction string `json:"instruction"`
		ModelID     string `json:"model_id"`
	}

	// ToolDescriptor is one entry in the tool inventory discovered for the
	// agent's configured tool servers.
	ToolDescriptor struct {
		Name             string         `json:"name"`
		Description      string         `json:"description"`
		Parameters       map[string]any `json:"parameters,omitempty"`
		ServerInstanceID string         `json:"server_instance_id,omitempty"`
	}

	// PendingApproval records a human-approval gate the workflow is
	// currently blocked on (either a projected-budget pause or an explicit
	// requires_human_approval gate).
	PendingApproval struct {
		Reason      string  `json:"reason"`
		RequestedAt string  `json:"requested_at"`
		ProjectedBy float64 `json:"projected_cost,omitempty"`
	}

	// AgentExecutionResult is the terminal value returned by the workflow.
	AgentExecutionResult struct {
		TaskID                string             `json:"task_id"`
		AgentID               string             `json:"agent_id"`
		Success               bool               `json:"success"`
		FinalResponse         string             `json:"final_response"`
		TotalCost             float64             `json:"total_cost"`
		ReasoningIterationsUsed int              `json:"reasoning_iterations_used"`
		ConversationHistory   []message.Message  `json:"conversation_history"`
		ErrorMessage          string             `json:"error_message,omitempty"`
	}

	// ExecutionStatusSnapshot answers the get_execution_status query.
	ExecutionStatusSnapshot struct {
		Status            Status  `json:"status"`
		CurrentIteration  int     `json:"current_iteration"`
		MaxIterations     int     `json:"max_iterations"`
		CostUSD           float64 `json:"cost_usd"`
		BudgetRemaining   float64 `json:"budget_remaining"`
		Paused            bool    `json:"paused"`
		PendingApproval   bool    `json:"pending_approval"`
	}

	// GoalProgressSnapshot answers the get_goal_progress query.
	GoalProgressSnapshot struct {
		Goal               AgentGoal `json:"goal"`
		ProgressPercentage float64   `json:"progress_percentage"`
	}

	// BudgetStatusSnapshot answers the get_budget_status query.
	BudgetStatusSnapshot struct {
		CostUSD         float64   `json:"cost_usd"`
		LimitUSD        float64   `json:"limit_usd"`
		RemainingUSD    float64   `json:"remaining_usd"`
		UtilizationPct  float64   `json:"utilization_pct"`
		CostPerLLMCall  []float64 `json:"cost_per_llm_call"`
	}
)

// goalFromRequest builds an AgentGoal from the request, applying defaults
// for max iterations (spec.md §3).
func goalFromRequest(req AgentExecutionRequest) AgentGoal {
	maxIter := req.MaxReasoningIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return AgentGoal{
		ID:                    req.TaskID,
		Description:           req.TaskQuery,
		MaxIterations:         maxIter,
		RequiresHumanApproval: req.RequiresHumanApproval,
		Context:               req.TaskParameters,
	}
}

// budgetFromRequest applies the default budget (spec.md §8 boundary
// behavior: budget_usd = 0 or absent uses the implementation default).
func budgetFromRequest(req AgentExecutionRequest) float64 {
	if req.BudgetUSD <= 0 {
		return defaultBudgetUSD
	}
	return req.BudgetUSD
}
