// Package model abstracts LLM completion (C1) behind a single Client
// interface, with provider adapters in model/anthropic and model/openai.
//
// Grounded on the shape of the teacher's runtime/agent/model.Client
// (Complete/Stream entry points, TokenUsage, typed call errors) but
// simplified to the flat message.Message the rest of this module uses,
// rather than the teacher's multi-part Message/Part system.
package model

import (
	"context"
	"errors"

	"github.com/goadesign/agentrun/message"
)

type (
	// Client performs LLM completions. Implementations must distinguish
	// retryable failures (transport, rate limit) from non-retryable ones
	// (auth, validation) via CallError.Retryable.
	Client interface {
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Request describes a single completion call.
	Request struct {
		ModelID     string
		Messages    []message.Message
		Tools       []ToolSchema
		Sampling    SamplingParams
		WorkspaceID string
		UserContext map[string]any
	}

	// ToolSchema is the function-call schema advertised to the model for one
	// tool, in OpenAI/Anthropic function-calling JSON Schema shape.
	ToolSchema struct {
		Name        string
		Description string
		Parameters  map[string]any
	}

	// SamplingParams holds optional generation parameters. Zero values mean
	// "use the provider's default".
	SamplingParams struct {
		Temperature      *float64
		TopP             *float64
		MaxOutputTokens  int
		StopSequences    []string
	}

	// TokenUsage reports token accounting for a single completion call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// Response is the assistant message produced by a completion call, plus
	// usage and cost accounting.
	Response struct {
		Message message.Message
		Usage   TokenUsage
		Cost    float64
	}

	// CallError wraps a completion failure with a retryability flag so the
	// activity layer and the workflow's error-handling design (§7) can tell
	// transport/quota failures (retryable) apart from auth/validation
	// failures (not retryable).
	CallError struct {
		Message   string
		Retryable bool
		Cause     error
	}
)

func (e *CallError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *CallError) Unwrap() error { return e.Cause }

// NewRetryableCallError wraps cause as a retryable LLMCallFailed error.
func NewRetryableCallError(message string, cause error) *CallError {
	return &CallError{Message: message, Retryable: true, Cause: cause}
}

// NewFatalCallError wraps cause as a non-retryable LLMCallFailed error (auth,
// validation).
func NewFatalCallError(message string, cause error) *CallError {
	return &CallError{Message: message, Retryable: false, Cause: cause}
}

// IsRetryable reports whether err represents a retryable LLM call failure.
func IsRetryable(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
