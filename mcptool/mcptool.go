// Package mcptool abstracts tool execution (C1) behind a Caller interface,
// with a production adapter in this package backed by
// github.com/modelcontextprotocol/go-sdk, grounded on the teacher's
// features/mcp/runtime Caller (HTTPCaller/StdioCaller) shape.
package mcptool

import (
	"context"
	"time"
)

type (
	// Caller executes a single tool invocation against an MCP-compatible tool
	// server. Implementations must translate transport failures into
	// *toolerrors.ToolError when returning an error, and otherwise report
	// failure through Response.Success rather than an error — matching §4.1's
	// `{success, result}` contract for execute_mcp_tool.
	Caller interface {
		CallTool(ctx context.Context, req Request) (Response, error)
	}

	// Request is one tool invocation.
	Request struct {
		ToolName         string
		Arguments        map[string]any
		ServerInstanceID string
	}

	// Response is the result of a tool invocation.
	Response struct {
		Success       bool
		Result        string
		ExecutionTime time.Duration
	}

	// ToolDescriptor is one entry in the catalogue's tool inventory, as
	// returned by discover_available_tools.
	ToolDescriptor struct {
		Name             string
		Description      string
		Parameters       map[string]any
		ServerInstanceID string
	}
)
