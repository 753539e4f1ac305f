package hooks

import "time"

// EventType enumerates the sixteen progress events the core emits.
type EventType string

const (
	WorkflowStarted        EventType = "WorkflowStarted"
	WorkflowCompleted      EventType = "WorkflowCompleted"
	WorkflowFailed         EventType = "WorkflowFailed"
	WorkflowCancelled      EventType = "WorkflowCancelled"
	IterationStarted       EventType = "IterationStarted"
	IterationCompleted     EventType = "IterationCompleted"
	LLMCallStarted         EventType = "LLMCallStarted"
	LLMCallCompleted       EventType = "LLMCallCompleted"
	LLMCallFailed          EventType = "LLMCallFailed"
	ToolCallStarted        EventType = "ToolCallStarted"
	ToolCallCompleted      EventType = "ToolCallCompleted"
	ToolCallFailed         EventType = "ToolCallFailed"
	BudgetWarning          EventType = "BudgetWarning"
	BudgetExceeded         EventType = "BudgetExceeded"
	HumanApprovalRequested EventType = "HumanApprovalRequested"
	HumanApprovalReceived  EventType = "HumanApprovalReceived"
)

// Event is the wire shape published to the external event broker: one record
// per event, serialized as UTF-8 JSON by the publish activity.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// New constructs an Event, seeding Data with the identifiers every event must
// carry (task_id, agent_id, execution_id) plus any extra fields supplied.
func New(eventID string, typ EventType, now time.Time, taskID, agentID, executionID string, extra map[string]any) Event {
	data := map[string]any{
		"task_id":      taskID,
		"agent_id":     agentID,
		"execution_id": executionID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return Event{
		EventID:   eventID,
		EventType: typ,
		Timestamp: now,
		Data:      data,
	}
}
