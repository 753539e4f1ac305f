// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API, adapted from the teacher's
// features/model/anthropic adapter to the flat message.Message shape used by
// this module.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/goadesign/agentrun/message"
	"github.com/goadesign/agentrun/model"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, satisfied by *sdk.MessageService so tests can supply a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the Anthropic adapter.
type Options struct {
	// DefaultModel is used when a request carries no model ID.
	DefaultModel string
	// MaxTokens sets the completion cap when a request does not override it.
	MaxTokens int
	// CostPerInputToken and CostPerOutputToken attach a dollar cost to usage,
	// since the Messages API itself reports only token counts.
	CostPerInputToken  float64
	CostPerOutputToken float64
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	costIn       float64
	costOut      float64
}

// New builds an Anthropic-backed model.Client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    maxTokens,
		costIn:       opts.CostPerInputToken,
		costOut:      opts.CostPerOutputToken,
	}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if len(req.Messages) == 0 {
		return model.Response{}, model.NewFatalCallError("anthropic: messages are required", nil)
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := c.maxTokens
	if req.Sampling.MaxOutputTokens > 0 {
		maxTokens = req.Sampling.MaxOutputTokens
	}

	system, msgs := splitSystem(req.Messages)
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Sampling.Temperature != nil {
		params.Temperature = sdk.Float(*req.Sampling.Temperature)
	}
	if tools, err := encodeTools(req.Tools); err != nil {
		return model.Response{}, model.NewFatalCallError("anthropic: encode tool schema", err)
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.msg.New(ctx, params)
	if err != nil {
		return model.Response{}, classifyError(err)
	}
	return c.translateResponse(resp), nil
}

func splitSystem(msgs []message.Message) (string, []sdk.MessageParam) {
	var system string
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case message.RoleUser, message.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case message.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func encodeTools(defs []model.ToolSchema) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: json.RawMessage(schema),
				},
			},
		})
	}
	return out, nil
}

func (c *Client) translateResponse(msg *sdk.Message) model.Response {
	out := message.Message{Role: message.RoleAssistant}
	var texts []string
	for i, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			texts = append(texts, b.Text)
		case sdk.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: message.FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		default:
			_ = i
		}
	}
	if len(texts) > 0 {
		for i, t := range texts {
			if i > 0 {
				out.Content += "\n"
			}
			out.Content += t
		}
	}
	usage := model.TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	cost := float64(usage.PromptTokens)*c.costIn + float64(usage.CompletionTokens)*c.costOut
	return model.Response{Message: out, Usage: usage, Cost: cost}
}

// classifyError distinguishes retryable transport/rate-limit failures from
// non-retryable auth/validation failures, per the error-handling design (§7).
func classifyError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403, 400, 404:
			return model.NewFatalCallError("anthropic: request rejected", err)
		default:
			return model.NewRetryableCallError("anthropic: call failed", err)
		}
	}
	return model.NewRetryableCallError("anthropic: call failed", err)
}
