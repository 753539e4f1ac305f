// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API, adapted from the teacher's features/model/openai
// adapter to the flat message.Message shape used by this module.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/goadesign/agentrun/message"
	"github.com/goadesign/agentrun/model"
)

// ChatClient captures the subset of the go-openai client this adapter uses,
// so callers can substitute a fake in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
	// CostPerInputToken and CostPerOutputToken let callers attach a dollar
	// cost to usage, since the OpenAI API itself does not return one.
	CostPerInputToken  float64
	CostPerOutputToken float64
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat               ChatClient
	defaultModel       string
	costPerInputToken  float64
	costPerOutputToken float64
}

// New builds an OpenAI-backed model.Client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:               opts.Client,
		defaultModel:       modelID,
		costPerInputToken:  opts.CostPerInputToken,
		costPerOutputToken: opts.CostPerOutputToken,
	}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if len(req.Messages) == 0 {
		return model.Response{}, model.NewFatalCallError("openai: messages are required", nil)
	}
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = toChatMessage(m)
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return model.Response{}, model.NewFatalCallError("openai: encode tool schema", err)
	}
	request := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	}
	if req.Sampling.Temperature != nil {
		request.Temperature = float32(*req.Sampling.Temperature)
	}
	if req.Sampling.TopP != nil {
		request.TopP = float32(*req.Sampling.TopP)
	}
	if req.Sampling.MaxOutputTokens > 0 {
		request.MaxTokens = req.Sampling.MaxOutputTokens
	}
	request.Stop = req.Sampling.StopSequences

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return model.Response{}, classifyError(err)
	}
	return c.translateResponse(resp), nil
}

func toChatMessage(m message.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func encodeTools(defs []model.ToolSchema) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools, nil
}

func (c *Client) translateResponse(resp openai.ChatCompletionResponse) model.Response {
	var out message.Message
	out.Role = message.RoleAssistant
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0].Message
		out.Content = choice.Content
		for i, tc := range choice.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:   id,
				Type: "function",
				Function: message.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	usage := model.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	cost := float64(usage.PromptTokens)*c.costPerInputToken + float64(usage.CompletionTokens)*c.costPerOutputToken
	return model.Response{Message: out, Usage: usage, Cost: cost}
}

// classifyError maps go-openai errors into model.CallError, distinguishing
// retryable transport/rate-limit failures from non-retryable auth/validation
// failures the way the error-handling design (§7) requires.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403, 400, 404:
			return model.NewFatalCallError("openai: request rejected", err)
		default:
			return model.NewRetryableCallError("openai: call failed", err)
		}
	}
	return model.NewRetryableCallError("openai: call failed", err)
}
