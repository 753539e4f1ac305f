// Package message implements the message and tool-call helpers (C5): system
// prompt construction, tool-call extraction from assistant messages, and
// message normalization before a message is handed to the LLM collaborator.
//
// The teacher's runtime/agent/model and runtime/agent/planner packages model
// messages as a multi-part structure (Parts []Part, each with its own
// discriminated encoding) to support rich multimodal content. This module
// deliberately uses the flatter shape this spec calls for, while keeping the
// JSON field-naming
// conventions and strict-role validation the teacher practices.
package message

import (
	"encoding/json"
	"fmt"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FunctionCall is the function-call payload of a ToolCall.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a structured request emitted by the LLM asking the agent to
// invoke a named external function with JSON-encoded arguments.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one entry in the conversation. Insertion order is conversation
// order; omitempty fields are only populated for the roles that use them.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	// Metadata carries out-of-band annotations (e.g. {"type": "human_feedback"})
	// that do not belong in the wire message sent to the LLM.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CompletionToolName is the canonical sentinel tool name that ends the
// reasoning loop successfully.
const CompletionToolName = "completion"

// legacyCompletionToolName is accepted on input for backward compatibility
// but never produced on output.
const legacyCompletionToolName = "task_complete"

// NormalizeToolName canonicalizes the completion sentinel: both "completion"
// and "task_complete" are accepted on input, but "completion" is the only
// form that ever appears in emitted events or persisted history.
func NormalizeToolName(name string) string {
	if name == legacyCompletionToolName {
		return CompletionToolName
	}
	return name
}

// IsCompletionTool reports whether name (in either accepted spelling) is the
// completion sentinel.
func IsCompletionTool(name string) bool {
	return name == CompletionToolName || name == legacyCompletionToolName
}

// SystemPromptInput supplies the pieces BuildSystemPrompt composes into a
// single system message.
type SystemPromptInput struct {
	AgentName        string
	AgentInstruction string
	GoalDescription  string
	SuccessCriteria  []string
	Tools            []ToolDescriptor
}

// ToolDescriptor is the minimal tool inventory entry a system prompt lists.
type ToolDescriptor struct {
	Name        string
	Description string
}

// BuildSystemPrompt composes the agent name, instruction, goal description,
// bulleted success criteria, and a tool inventory into a single system
// Message.
func BuildSystemPrompt(in SystemPromptInput) Message {
	var b []byte
	b = append(b, fmt.Sprintf("You are %s.\n\n%s\n\n", in.AgentName, in.AgentInstruction)...)
	b = append(b, fmt.Sprintf("Goal: %s\n", in.GoalDescription)...)
	if len(in.SuccessCriteria) > 0 {
		b = append(b, "Success criteria:\n"...)
		for _, c := range in.SuccessCriteria {
			b = append(b, fmt.Sprintf("- %s\n", c)...)
		}
	}
	if len(in.Tools) > 0 {
		b = append(b, "\nAvailable tools:\n"...)
		for _, t := range in.Tools {
			b = append(b, fmt.Sprintf("- %s: %s\n", t.Name, t.Description)...)
		}
	}
	return Message{Role: RoleSystem, Content: string(b)}
}

// StatusMessage builds the short per-iteration status user message inserted
// on every iteration after the first.
func StatusMessage(iteration, maxIterations int, budgetRemaining float64) Message {
	return Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("Status: iteration %d/%d | Budget remaining: $%.2f", iteration, maxIterations, budgetRemaining),
	}
}

// ExtractToolCalls returns the ordered ToolCall list carried by an assistant
// message, filling in defaults for missing id/arguments fields. A message
// with no tool calls yields an empty (non-nil) slice.
func ExtractToolCalls(m Message) []ToolCall {
	out := make([]ToolCall, 0, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", i)
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		if tc.Function.Arguments == "" {
			tc.Function.Arguments = "{}"
		}
		out = append(out, tc)
	}
	return out
}

// NormalizeMessage strips fields that are absent/zero for the message's role
// before it is sent to the LLM collaborator, keeping only the keys the
// provider accepts for that role.
func NormalizeMessage(m Message) Message {
	out := Message{Role: m.Role, Content: m.Content}
	switch m.Role {
	case RoleTool:
		out.ToolCallID = m.ToolCallID
		out.Name = m.Name
	case RoleAssistant:
		if len(m.ToolCalls) > 0 {
			out.ToolCalls = m.ToolCalls
		}
	}
	return out
}

// DecodeCompletionArguments parses a completion tool call's JSON arguments
// and returns the result string, falling back to a default when the
// "result" field is absent or the arguments fail to parse.
func DecodeCompletionArguments(arguments, fallback string) string {
	var payload struct {
		Result string `json:"result"`
	}
	if arguments == "" {
		return fallback
	}
	if err := json.Unmarshal([]byte(arguments), &payload); err != nil || payload.Result == "" {
		return fallback
	}
	return payload.Result
}
