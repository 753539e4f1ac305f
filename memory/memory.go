// Package memory persists agent conversation transcripts beyond the
// workflow engine's own event history, so callers can inspect or replay a
// task's message/tool-call sequence without querying the workflow engine.
//
// Grounded on the teacher's agents/runtime/memory.Store (chronological
// event log, LoadRun/AppendEvents shape), narrowed from the teacher's
// generic planner-facing Event/Reader/Annotation surface to the
// conversation-transcript concern this module needs.
package memory

import (
	"context"
	"time"
)

// EventType enumerates persisted transcript event categories.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
)

type (
	// Store persists an append-only transcript per (agentID, taskID).
	// Implementations must be safe for concurrent use.
	Store interface {
		// LoadRun retrieves the transcript for the given agent/task. Returns
		// an empty Snapshot (not an error) if the task has no transcript yet.
		LoadRun(ctx context.Context, agentID, taskID string) (Snapshot, error)

		// AppendEvents appends events to the task's transcript.
		AppendEvents(ctx context.Context, agentID, taskID string, events ...Event) error
	}

	// Snapshot is the transcript for one task at a point in time, immutable
	// once returned by LoadRun.
	Snapshot struct {
		AgentID string
		TaskID  string
		Events  []Event
	}

	// Event is one entry in a task's transcript.
	Event struct {
		Type      EventType
		Timestamp time.Time
		// Data holds the event-specific payload: a message.Message for
		// user_message/assistant_message/tool_result events (tool_result's
		// Message carries the tool's result in Content and the originating
		// call's id in ToolCallID), or a message.ToolCall for tool_call.
		Data any
	}
)
